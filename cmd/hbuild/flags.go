package main

import "strings"

// repeatedFlag accumulates repeatable flag.Value occurrences (e.g. -D, -L,
// -l) in the order given on the command line.
type repeatedFlag []string

func (r *repeatedFlag) String() string { return strings.Join(*r, ",") }

func (r *repeatedFlag) Set(v string) error {
	*r = append(*r, v)
	return nil
}

// define is one parsed "ident[:type]=value" define (§6).
type define struct {
	Ident string
	Type  string
	Value string
}

func parseDefine(s string) (define, error) {
	eq := strings.IndexByte(s, '=')
	if eq < 0 {
		return define{}, errBadDefine(s)
	}
	lhs, value := s[:eq], s[eq+1:]
	ident, typ := lhs, ""
	if colon := strings.IndexByte(lhs, ':'); colon >= 0 {
		ident, typ = lhs[:colon], lhs[colon+1:]
	}
	if ident == "" {
		return define{}, errBadDefine(s)
	}
	return define{Ident: ident, Type: typ, Value: value}, nil
}

type errBadDefine string

func (e errBadDefine) Error() string { return "malformed define (want ident[:type]=value): " + string(e) }
