package store

import "fmt"

// Open selects a backend by kind. Supported kinds are "memory" and, in
// builds with the sqlite tag, "sqlite".
func Open(kind, path string, columns []string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(path, columns)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}

// CloseIfSupported closes backends that hold external resources.
func CloseIfSupported(s Store) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
