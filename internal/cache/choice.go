package cache

import "fmt"

// Mode selects how a caller obtains its cache.
type Mode int

const (
	// ModeDefault lazily builds a DiskCache under DefaultRoot()
	ModeDefault Mode = iota
	// ModeExplicit uses a caller-provided cache instance
	ModeExplicit
	// ModeDisabled turns caching off
	ModeDisabled
)

func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeExplicit:
		return "explicit"
	case ModeDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Choice is the cache configuration handed to clients.
// The zero value is Default().
type Choice struct {
	mode  Mode
	cache GenericCache
}

// Default selects a DiskCache in the per-user temp directory.
func Default() Choice {
	return Choice{mode: ModeDefault}
}

// Use selects an existing cache. A nil cache is the same as Disabled().
func Use(c GenericCache) Choice {
	if c == nil {
		return Disabled()
	}
	return Choice{mode: ModeExplicit, cache: c}
}

// Disabled turns caching off.
func Disabled() Choice {
	return Choice{mode: ModeDisabled}
}

// Mode returns the selected mode.
func (c Choice) Mode() Mode {
	return c.mode
}

// Resolve returns the cache to use, or nil when caching is disabled.
func (c Choice) Resolve() (GenericCache, error) {
	switch c.mode {
	case ModeDefault:
		disk, err := NewDisk("")
		if err != nil {
			return nil, fmt.Errorf("failed to create default cache: %w", err)
		}
		return disk, nil
	case ModeExplicit:
		return c.cache, nil
	case ModeDisabled:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache mode: %s", c.mode)
	}
}
