package discovery

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Service constants.
const (
	ServiceType = "_devtree._tcp"
	Domain      = "local."

	// ProtocolVersion is advertised in the version TXT record.
	ProtocolVersion = 1

	// MaxInstanceNameLen is the DNS-SD instance label limit.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyName    = "name"
	TXTKeyVersion = "version"
	TXTKeyHost    = "host"
)

// Discovery errors.
var (
	ErrMissingRequired     = errors.New("missing required TXT record")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record")
	ErrInstanceNameInvalid = errors.New("invalid instance name")
	ErrNotFound            = errors.New("no server found")
	ErrNotAdvertising      = errors.New("not advertising")
)

// ServerInfo is what a server advertises about itself.
type ServerInfo struct {
	Name    string
	Version int
	Host    string
	Port    int
}

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT builds the TXT records for info.
func EncodeTXT(info ServerInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyName:    info.Name,
		TXTKeyVersion: strconv.Itoa(info.Version),
	}
	if info.Host != "" {
		txt[TXTKeyHost] = info.Host
	}
	return txt
}

// DecodeTXT parses server TXT records.
func DecodeTXT(txt TXTRecordMap) (ServerInfo, error) {
	var info ServerInfo
	var ok bool
	info.Name, ok = txt[TXTKeyName]
	if !ok || info.Name == "" {
		return ServerInfo{}, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyName)
	}
	v, ok := txt[TXTKeyVersion]
	if !ok {
		return ServerInfo{}, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	version, err := strconv.Atoi(v)
	if err != nil || version <= 0 {
		return ServerInfo{}, fmt.Errorf("%w: version %q", ErrInvalidTXTRecord, v)
	}
	info.Version = version
	info.Host = txt[TXTKeyHost]
	return info, nil
}

// TXTRecordsToStrings converts records to "key=value" strings, sorted by
// key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings. A bare key maps to "".
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if found {
			txt[k] = v
		} else if k != "" {
			txt[k] = ""
		}
	}
	return txt
}

// InstanceName derives a DNS-SD instance label from a server name.
func InstanceName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInstanceNameInvalid)
	}
	name = strings.ReplaceAll(name, ".", "-")
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name, nil
}
