package discovery

import (
	"path/filepath"
	"strings"
)

// RejectReason says which policy rule rejected a file.
type RejectReason string

// Policy rules, in the order they are applied.
const (
	RejectExcluded  RejectReason = "excluded"
	RejectExtension RejectReason = "extension"
	RejectSize      RejectReason = "size"
)

// Policy decides which files are collected. It is immutable after
// construction and safe for concurrent use.
type Policy struct {
	excludes    []string
	extensions  map[string]bool
	maxFileSize int64
}

// NewPolicy builds a policy. Excluded prefixes are made absolute and
// cleaned; extensions are matched case-insensitively with or without a
// leading dot. maxFileSize <= 0 disables the size ceiling.
func NewPolicy(excludes, extensions []string, maxFileSize int64) *Policy {
	p := &Policy{maxFileSize: maxFileSize}

	for _, ex := range excludes {
		if ex == "" {
			continue
		}
		if abs, err := filepath.Abs(ex); err == nil {
			ex = abs
		}
		p.excludes = append(p.excludes, filepath.Clean(ex))
	}

	if len(extensions) > 0 {
		p.extensions = make(map[string]bool, len(extensions))
		for _, ext := range extensions {
			if ext = normalizeExt(ext); ext != "" {
				p.extensions[ext] = true
			}
		}
	}

	return p
}

// MaxFileSize returns the size ceiling in bytes, or 0 if there is none.
func (p *Policy) MaxFileSize() int64 {
	return p.maxFileSize
}

// Excluded reports whether path lies under an excluded prefix. Prefixes
// match whole path components: /data/tmp excludes /data/tmp/x but not
// /data/tmpfile.
func (p *Policy) Excluded(path string) bool {
	path = filepath.Clean(path)
	for _, ex := range p.excludes {
		if path == ex {
			return true
		}
		prefix := ex
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// AllowsExtension reports whether path passes the extension allow-list.
// An empty allow-list allows everything.
func (p *Policy) AllowsExtension(path string) bool {
	if p.extensions == nil {
		return true
	}
	return p.extensions[normalizeExt(filepath.Ext(path))]
}

// Evaluate applies exclusion, extension and size rules in that order.
// size is only called when the first two rules pass, so callers can defer the
// stat until it is needed. An empty reason means the file is accepted.
func (p *Policy) Evaluate(path string, size func() (int64, error)) (RejectReason, error) {
	if p.Excluded(path) {
		return RejectExcluded, nil
	}
	if !p.AllowsExtension(path) {
		return RejectExtension, nil
	}
	if p.maxFileSize > 0 {
		n, err := size()
		if err != nil {
			return "", err
		}
		if n > p.maxFileSize {
			return RejectSize, nil
		}
	}
	return "", nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}
