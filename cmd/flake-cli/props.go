package main

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/coldwave/flake-go/pkg/wire"
)

var errSyntax = errors.New("syntax error")

var typeNames = map[string]wire.Type{
	"int32":    wire.TypeInt32,
	"int16":    wire.TypeInt16,
	"int8":     wire.TypeInt8,
	"uint32":   wire.TypeUint32,
	"uint16":   wire.TypeUint16,
	"uint8":    wire.TypeUint8,
	"bool":     wire.TypeBool,
	"uuid":     wire.TypeUUID,
	"float":    wire.TypeFloat,
	"datetime": wire.TypeDateTime,
	"bin":      wire.TypeBinary,
	"string":   wire.TypeString,
}

// parseTag reads "id" or "id:type", where id is decimal or 0x hex.
func parseTag(s string) (wire.Tag, error) {
	idStr, typStr, hasType := strings.Cut(s, ":")
	id, err := strconv.ParseUint(idStr, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: property id %q", errSyntax, idStr)
	}
	typ := wire.TypeInvalid
	if hasType {
		var ok bool
		if typ, ok = typeNames[strings.ToLower(typStr)]; !ok {
			return 0, fmt.Errorf("%w: unknown type %q", errSyntax, typStr)
		}
	}
	return wire.MakeTag(uint16(id), typ, 0), nil
}

// parseProp reads "id:type=value".
func parseProp(s string) (wire.Property, error) {
	tagStr, valStr, ok := strings.Cut(s, "=")
	if !ok {
		return wire.Property{}, fmt.Errorf("%w: expected id:type=value, got %q", errSyntax, s)
	}
	tag, err := parseTag(tagStr)
	if err != nil {
		return wire.Property{}, err
	}
	if tag.Type() == wire.TypeInvalid {
		return wire.Property{}, fmt.Errorf("%w: %q needs a type", errSyntax, tagStr)
	}
	v, err := wire.ParseValue(tag.Type(), valStr)
	if err != nil {
		return wire.Property{}, fmt.Errorf("property %s: %w", tagStr, err)
	}
	return wire.Property{Tag: tag, Value: v}, nil
}

func parseProps(args []string) (wire.PropArray, error) {
	var props wire.PropArray
	for _, a := range args {
		p, err := parseProp(a)
		if err != nil {
			return wire.PropArray{}, err
		}
		props.Set(p)
	}
	return props, nil
}

func parseTags(args []string) ([]wire.Tag, error) {
	tags := make([]wire.Tag, 0, len(args))
	for _, a := range args {
		t, err := parseTag(a)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, nil
}

func parseAddr(s string) (wire.Addr, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: address %q", errSyntax, s)
	}
	return wire.Addr(v), nil
}

// target is a parsed router address.
type target struct {
	scheme string // tcp, tls, udp, ws or wss
	host   string // host:port
	url    string // full URL for ws and wss
}

// parseTarget accepts host[:port] or scheme://host[:port][/path]. The port
// defaults to defaultPort.
func parseTarget(s string, defaultPort int) (target, error) {
	if !strings.Contains(s, "://") {
		s = "tcp://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return target{}, err
	}
	switch u.Scheme {
	case "tcp", "tls", "udp", "ws", "wss":
	default:
		return target{}, fmt.Errorf("%w: unsupported scheme %q", errSyntax, u.Scheme)
	}
	if u.Hostname() == "" {
		return target{}, fmt.Errorf("%w: missing host in %q", errSyntax, s)
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), strconv.Itoa(defaultPort))
		u.Host = host
	}
	return target{scheme: u.Scheme, host: host, url: u.String()}, nil
}
