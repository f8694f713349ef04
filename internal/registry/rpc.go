package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go/rpc"
)

const DefaultCluster = "mainnet-beta"

// Public RPC endpoints by cluster name, used whenever --rpc-url is not passed.
var defaultRPCByCluster = map[string]string{
	"mainnet-beta": rpc.MainNetBeta_RPC,
	"devnet":       rpc.DevNet_RPC,
	"testnet":      rpc.TestNet_RPC,
}

func DefaultRPCURL(cluster string) (string, bool) {
	value, ok := defaultRPCByCluster[strings.ToLower(strings.TrimSpace(cluster))]
	return value, ok
}

// ResolveRPCURL returns override when set, the cluster default when override
// names a known cluster or is empty, and an error otherwise.
func ResolveRPCURL(override string) (string, error) {
	override = strings.TrimSpace(override)
	if override == "" {
		override = DefaultCluster
	}
	if value, ok := DefaultRPCURL(override); ok {
		return value, nil
	}
	if !IsAllowedEndpoint(override) {
		return "", fmt.Errorf("rpc url %q must be https, a loopback url, or one of %s", override, strings.Join(Clusters(), ", "))
	}
	return override, nil
}

func Clusters() []string {
	out := make([]string, 0, len(defaultRPCByCluster))
	for name := range defaultRPCByCluster {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
