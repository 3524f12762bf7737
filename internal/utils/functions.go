package utils

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

// ResolveOutputPath returns the absolute destination for a download. With no
// explicit path the last segment of the URL path is used, percent-decoded
// after splitting. A path ending in "/" has no file name.
func ResolveOutputPath(rawURL, outputPath string) (string, error) {
	if outputPath != "" {
		return ExpandPath(outputPath)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	// split on the escaped path so an encoded slash stays part of the name
	escaped := parsed.EscapedPath()
	name := escaped[strings.LastIndex(escaped, "/")+1:]
	if name == "" {
		return "", ErrNoFileName
	}
	name, err = url.PathUnescape(name)
	if err != nil {
		return "", fmt.Errorf("invalid URL path: %w", err)
	}
	return filepath.Abs(name)
}

// ExpandPath expands a leading ~ and makes the path absolute.
func ExpandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("error resolving home directory: %w", err)
		}
		p = filepath.Join(home, p[1:])
	}
	return filepath.Abs(p)
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// ParseCookieArgs turns name=value pairs into cookies; malformed entries are skipped.
func ParseCookieArgs(cookies []string) []*http.Cookie {
	var result []*http.Cookie
	for _, c := range cookies {
		name, value, ok := strings.Cut(c, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		result = append(result, &http.Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return result
}

func ReadDownloadList(filePath string) ([]DownloadEntry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading download list: %w", err)
	}
	var entries []DownloadEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing download list: %w", err)
	}
	valid := entries[:0]
	for _, entry := range entries {
		if strings.TrimSpace(entry.URL) == "" {
			continue
		}
		valid = append(valid, entry)
	}
	return valid, nil
}
