package wire

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
	"github.com/xinkaiwang/integralfarm/libs/xklib/klogging"
)

// ProbePayload is the discovery datagram content. Receivers ignore it, any non-empty datagram counts.
var ProbePayload = []byte("hello\x00")

// SendProbe sends one probe datagram to broadcastAddr:port.
// Go datagram sockets already carry SO_BROADCAST on unix platforms.
func SendProbe(ctx context.Context, broadcastAddr string, port int) error {
	target, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(broadcastAddr, strconv.Itoa(port)))
	if err != nil {
		return kerror.Wrap(err, "BroadcastFailure", "cannot resolve broadcast address", false).
			With("addr", broadcastAddr).
			With("port", port).
			WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return kerror.Wrap(err, "BroadcastFailure", "cannot open datagram socket", false).WithErrorCode(kerror.EC_NETWORK_ERR)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}
	n, err := conn.WriteToUDP(ProbePayload, target)
	if err != nil || n != len(ProbePayload) {
		return kerror.Wrap(err, "BroadcastFailure", "probe send failed", false).
			With("target", target.String()).
			With("written", n).
			WithErrorCode(kerror.EC_NETWORK_ERR)
	}
	klogging.Debug(ctx).With("target", target.String()).Log("ProbeSent", "discovery probe sent")
	return nil
}

// ProbeListener is a bound discovery socket.
type ProbeListener struct {
	conn *net.UDPConn
}

// ListenProbes binds 0.0.0.0:port. Port 0 picks an ephemeral port, see Port().
func ListenProbes(port int) (*ProbeListener, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, kerror.Wrap(err, "ListenFailure", "cannot bind discovery port", false).
			With("port", port).
			WithErrorCode(kerror.EC_NETWORK_ERR)
	}
	return &ProbeListener{conn: conn}, nil
}

func (pl *ProbeListener) Port() int {
	return pl.conn.LocalAddr().(*net.UDPAddr).Port
}

// Wait blocks until a non-empty datagram arrives and returns the sender's IP.
// Returns ctx.Err() once ctx is done.
func (pl *ProbeListener) Wait(ctx context.Context) (net.IP, error) {
	stop := context.AfterFunc(ctx, func() {
		pl.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer func() {
		if !stop() {
			// AfterFunc already fired; clear the deadline it set for the next Wait
			pl.conn.SetReadDeadline(time.Time{})
		}
	}()

	buf := make([]byte, 512)
	for {
		n, from, err := pl.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, kerror.Wrap(err, "ListenerClosed", "discovery socket closed", false)
			}
			return nil, kerror.Wrap(err, "ProbeReadFailed", "failed to read discovery datagram", false).WithErrorCode(kerror.EC_NETWORK_ERR)
		}
		if n == 0 {
			klogging.Debug(ctx).With("from", from.String()).Log("EmptyProbe", "ignoring empty datagram")
			continue
		}
		return from.IP, nil
	}
}

func (pl *ProbeListener) Close() error {
	return pl.conn.Close()
}
