package compute

import (
	"math"
	"sort"

	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
)

// Identity is f(x) = x, the default integrand.
func Identity(x float64) float64 {
	return x
}

var workloads = map[string]Workload{
	"identity": Identity,
	"square":   func(x float64) float64 { return x * x },
	"sin":      math.Sin,
	"exp":      math.Exp,
}

// LookupWorkload maps a name to an integrand. Workers and coordinator must agree on it out of band.
func LookupWorkload(name string) (Workload, error) {
	if name == "" {
		return Identity, nil
	}
	f, ok := workloads[name]
	if !ok {
		return nil, kerror.Create("UnknownWorkload", "no such workload").
			With("name", name).
			With("known", WorkloadNames()).
			WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	return f, nil
}

func WorkloadNames() []string {
	names := make([]string, 0, len(workloads))
	for k := range workloads {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
