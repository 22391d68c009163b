package discovery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/coldwave/flake-go/pkg/version"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeRouterTXT creates the TXT records of a router announcement.
func EncodeRouterTXT(info *RouterInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	txt[TXTKeyVersion] = info.Version
	if txt[TXTKeyVersion] == "" {
		txt[TXTKeyVersion] = version.Current
	}
	txt[TXTKeyName] = info.Name

	if len(info.Wires) > 0 {
		txt[TXTKeyWires] = strings.Join(info.Wires, ",")
	}
	if info.Auth != "" {
		txt[TXTKeyAuth] = info.Auth
	}
	if info.Path != "" {
		txt[TXTKeyPath] = info.Path
	}
	return txt
}

// DecodeRouterTXT parses the TXT records of a router announcement. Routers
// speaking a different major version are rejected.
func DecodeRouterTXT(txt TXTRecordMap) (*RouterInfo, error) {
	ver, ok := txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	v, err := version.Parse(ver)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}
	if !v.Compatible(version.MustParse(version.Current)) {
		return nil, fmt.Errorf("%w: %s", ErrIncompatible, ver)
	}

	info := &RouterInfo{
		Version: ver,
		Name:    txt[TXTKeyName],
		Auth:    txt[TXTKeyAuth],
		Path:    txt[TXTKeyPath],
	}
	if w := txt[TXTKeyWires]; w != "" {
		info.Wires = strings.Split(w, ",")
	}
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings,
// sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, _ := strings.Cut(s, "=")
		if k != "" {
			txt[k] = v
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
