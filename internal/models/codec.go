package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Marshal encodes the document in its canonical form: one JSON object,
// identity keys in sorted order, each value an array of site strings.
func Marshal(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	out := make(map[string][]string, len(doc))
	for name, sites := range doc {
		if sites == nil {
			sites = []string{}
		}
		out[name] = sites
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("%w: encode document: %w", ErrPersistence, err)
	}
	return data, nil
}

// Unmarshal parses a persisted document. Empty input yields an empty
// document. Anything that is not an object of string arrays, or that
// breaks a registry invariant (blank or untrimmed names, duplicate
// identities, duplicate sites), fails with ErrPersistence.
func Unmarshal(data []byte) (Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, nil
	}
	doc, err := decode(json.NewDecoder(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return doc, nil
}

func decode(dec *json.Decoder) (Document, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("document root: %w", err)
	}
	doc := Document{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := tok.(string)
		if err := checkName(name); err != nil {
			return nil, fmt.Errorf("identity %q: %w", name, err)
		}
		if _, dup := doc[name]; dup {
			return nil, fmt.Errorf("identity %q listed twice", name)
		}
		sites, err := decodeCatalog(dec)
		if err != nil {
			return nil, fmt.Errorf("identity %q: %w", name, err)
		}
		doc[name] = sites
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after document")
	}
	return doc, nil
}

func decodeCatalog(dec *json.Decoder) ([]string, error) {
	if err := expectDelim(dec, '['); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	sites := []string{}
	seen := map[string]struct{}{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		site, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("site entry %v is not a string", tok)
		}
		if err := checkName(site); err != nil {
			return nil, fmt.Errorf("site %q: %w", site, err)
		}
		if _, dup := seen[site]; dup {
			return nil, fmt.Errorf("site %q listed twice", site)
		}
		seen[site] = struct{}{}
		sites = append(sites, site)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}
	return sites, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func checkName(name string) error {
	switch {
	case name == "":
		return errors.New("empty name")
	case strings.TrimSpace(name) != name:
		return errors.New("name has surrounding whitespace")
	}
	return nil
}
