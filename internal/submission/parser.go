// Package submission implements the ingestion pipeline: body parsing,
// honeypot screening, field sorting, validation warnings, request metadata
// capture, persistence, and action enqueueing.
package submission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"
)

// ParseBody decodes a request body according to its Content-Type.
// JSON bodies decode to their JSON value (usually an object); form and
// multipart bodies decode to a flat map of string fields. An unknown or
// absent content type falls back to JSON, then form-urlencoded.
func ParseBody(contentType string, body []byte) (any, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}

	switch mediaType {
	case "application/json":
		return parseJSON(body)
	case "application/x-www-form-urlencoded":
		return parseForm(body)
	case "multipart/form-data":
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart body missing boundary")
		}
		return parseMultipart(body, boundary)
	default:
		if v, err := parseJSON(body); err == nil {
			return v, nil
		}
		if v, err := parseForm(body); err == nil {
			return v, nil
		}
		return nil, fmt.Errorf("unable to parse request body")
	}
}

// IsFormContentType reports whether the request came from an HTML form,
// which is what gates the 303 redirect response.
func IsFormContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data"
}

func parseJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON body")
	}
	// Trailing garbage after the value is not valid JSON.
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON body")
	}
	return v, nil
}

// parseForm decodes urlencoded bodies to a string map. Repeated keys keep
// the first value.
func parseForm(body []byte) (any, error) {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return map[string]any{}, nil
	}
	// ParseQuery happily treats arbitrary text as a bare key; demand at
	// least one key=value pair so garbage bodies fail instead.
	if !strings.Contains(s, "=") {
		return nil, fmt.Errorf("invalid form body")
	}
	values, err := url.ParseQuery(s)
	if err != nil {
		return nil, fmt.Errorf("invalid form body")
	}
	m := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			m[key] = vals[0]
		} else {
			m[key] = ""
		}
	}
	return m, nil
}

// parseMultipart reads every part as a text field; file parts contribute
// their content as the field value.
func parseMultipart(body []byte, boundary string) (any, error) {
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	m := map[string]any{}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid multipart body")
		}
		name := part.FormName()
		if name == "" {
			continue
		}
		content, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("invalid multipart body")
		}
		if _, dup := m[name]; !dup {
			m[name] = string(content)
		}
	}
	return m, nil
}
