package etcdprov

import (
	"context"
	"strings"
	"time"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kcommon"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
	"github.com/xinkaiwang/integralfarm/libs/xklib/klogging"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// etcdDefaultProvider talks to a real cluster.
// ETCD_ENDPOINTS: comma separated, default "localhost:2379"
// ETCD_DIAL_TIMEOUT: Go duration, default 5s
type etcdDefaultProvider struct {
	client *clientv3.Client
}

func NewDefaultEtcdProvider(ctx context.Context) (EtcdProvider, error) {
	endpoints := getEndpointsFromEnv()
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: getDialTimeoutFromEnv(),
		Context:     ctx,
	})
	if err != nil {
		return nil, kerror.Wrap(err, "EtcdConnectError", "failed to connect to etcd", false).
			With("endpoints", strings.Join(endpoints, ",")).
			WithErrorCode(kerror.EC_INTERNAL_ERROR)
	}
	klogging.Info(ctx).With("endpoints", strings.Join(endpoints, ",")).Log("EtcdConnected", "etcd client created")
	return &etcdDefaultProvider{client: cli}, nil
}

func toItem(key, value []byte, rev int64) EtcdKvItem {
	return EtcdKvItem{Key: string(key), Value: string(value), ModRevision: EtcdRevision(rev)}
}

func (pvd *etcdDefaultProvider) Get(ctx context.Context, key string) (EtcdKvItem, error) {
	resp, err := pvd.client.Get(ctx, key)
	if err != nil {
		return EtcdKvItem{}, kerror.Wrap(err, "EtcdGetError", "failed to get key from etcd", false).
			With("key", key).
			WithErrorCode(kerror.EC_INTERNAL_ERROR)
	}
	if len(resp.Kvs) == 0 {
		return EtcdKvItem{Key: key}, nil
	}
	kv := resp.Kvs[0]
	return toItem(kv.Key, kv.Value, kv.ModRevision), nil
}

func (pvd *etcdDefaultProvider) List(ctx context.Context, prefix string, maxCount int) ([]EtcdKvItem, error) {
	opts := []clientv3.OpOption{
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	}
	if maxCount > 0 {
		opts = append(opts, clientv3.WithLimit(int64(maxCount)))
	}
	resp, err := pvd.client.Get(ctx, prefix, opts...)
	if err != nil {
		return nil, kerror.Wrap(err, "EtcdListError", "failed to list keys from etcd", false).
			With("prefix", prefix).
			WithErrorCode(kerror.EC_INTERNAL_ERROR)
	}
	klogging.Debug(ctx).With("prefix", prefix).With("count", len(resp.Kvs)).Log("ListKeysResponse", "got keys from etcd")
	items := make([]EtcdKvItem, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		items = append(items, toItem(kv.Key, kv.Value, kv.ModRevision))
	}
	return items, nil
}

func (pvd *etcdDefaultProvider) Set(ctx context.Context, key, value string) error {
	if _, err := pvd.client.Put(ctx, key, value); err != nil {
		return kerror.Wrap(err, "EtcdPutError", "failed to set key in etcd", false).
			With("key", key).
			WithErrorCode(kerror.EC_INTERNAL_ERROR)
	}
	return nil
}

func (pvd *etcdDefaultProvider) Delete(ctx context.Context, key string, strictMode bool) error {
	resp, err := pvd.client.Delete(ctx, key)
	if err != nil {
		return kerror.Wrap(err, "EtcdDeleteError", "failed to delete key from etcd", false).
			With("key", key).
			WithErrorCode(kerror.EC_INTERNAL_ERROR)
	}
	if strictMode && resp.Deleted == 0 {
		return keyNotFound(key)
	}
	return nil
}

func (pvd *etcdDefaultProvider) Close() error {
	return pvd.client.Close()
}

func getEndpointsFromEnv() []string {
	if endpoints := kcommon.GetEnvString("ETCD_ENDPOINTS", ""); endpoints != "" {
		return strings.Split(endpoints, ",")
	}
	return []string{"localhost:2379"}
}

func getDialTimeoutFromEnv() time.Duration {
	if timeout := kcommon.GetEnvString("ETCD_DIAL_TIMEOUT", ""); timeout != "" {
		if value, err := time.ParseDuration(timeout); err == nil && value > 0 {
			return value
		}
	}
	return 5 * time.Second
}
