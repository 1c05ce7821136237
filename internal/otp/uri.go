package otp

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Key describes an otpauth:// provisioning URI.
type Key struct {
	Type   string
	Name   string
	Issuer string
	Secret string
	Params Params
}

// ParseURI parses an otpauth://totp URI as exported by authenticator apps.
func ParseURI(raw string) (*Key, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse otpauth uri: %w", err)
	}
	if u.Scheme != "otpauth" {
		return nil, fmt.Errorf("not an otpauth uri: scheme %q", u.Scheme)
	}
	if u.Host != "totp" {
		return nil, fmt.Errorf("unsupported otp type %q", u.Host)
	}

	label := strings.TrimPrefix(u.Path, "/")
	var issuer, name string
	if i := strings.Index(label, ":"); i >= 0 {
		issuer = strings.TrimSpace(label[:i])
		name = strings.TrimSpace(label[i+1:])
	} else {
		name = strings.TrimSpace(label)
	}

	q := u.Query()
	if v := q.Get("issuer"); v != "" {
		issuer = v
	}
	secret := NormalizeSecret(q.Get("secret"))
	if secret == "" {
		return nil, fmt.Errorf("otpauth uri has no secret")
	}

	p := Params{Algorithm: q.Get("algorithm")}
	if v := q.Get("digits"); v != "" {
		if p.Digits, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("%w: digits %q", ErrInvalidParams, v)
		}
	}
	if v := q.Get("period"); v != "" {
		if p.Period, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("%w: period %q", ErrInvalidParams, v)
		}
	}
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateSecret(secret); err != nil {
		return nil, err
	}

	return &Key{Type: u.Host, Name: name, Issuer: issuer, Secret: secret, Params: p}, nil
}

// BuildURI renders k as an otpauth://totp URI.
func BuildURI(k Key) string {
	p := k.Params.Normalize()
	label := k.Name
	if k.Issuer != "" {
		label = k.Issuer + ":" + k.Name
	}

	v := url.Values{}
	v.Set("secret", NormalizeSecret(k.Secret))
	if k.Issuer != "" {
		v.Set("issuer", k.Issuer)
	}
	v.Set("algorithm", p.Algorithm)
	v.Set("digits", strconv.Itoa(p.Digits))
	v.Set("period", strconv.Itoa(p.Period))

	return "otpauth://totp/" + url.PathEscape(label) + "?" + v.Encode()
}
