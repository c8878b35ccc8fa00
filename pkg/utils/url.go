package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path/filepath"
	"strings"
)

// HashKey creates a SHA256 hash of the given parts joined by a unit separator.
// It gives consistent, safe keys for Redis and primary keys for Postgres.
func HashKey(parts ...string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))
}

// ToAbsoluteURL converts a relative URL to an absolute URL given a base URL.
func ToAbsoluteURL(base *url.URL, relative string) (string, error) {
	relURL, err := url.Parse(relative)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(relURL).String(), nil
}

// SplitList splits a comma-separated input, trimming entries and dropping empty ones.
func SplitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

var unsafeFileChars = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-",
	"\"", "-", "<", "-", ">", "-", "|", "-", "\x00", "-",
)

// ResultFileName returns the CSV path for a (term, locality) pair inside dir.
func ResultFileName(dir, term, locality string) string {
	name := unsafeFileChars.Replace(term) + "_" + unsafeFileChars.Replace(locality) + ".csv"
	return filepath.Join(dir, name)
}
