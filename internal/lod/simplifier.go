package lod

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// MinScale is the smallest factor ScaleSimplifier shrinks a proxy to.
const MinScale = 0.1

// ErrUnsupported reports that an object cannot host simplified proxies.
var ErrUnsupported = errors.New("lod: object does not support proxy generation")

// Object is a base visual representation managed by the engine.
type Object interface {
	ID() string
	Position() r3.Vector
	SetVisible(visible bool)
}

// Proxy is a simplified stand-in for an Object.
type Proxy interface {
	SetVisible(visible bool)
	Dispose()
}

// Simplifier builds proxies. Supports is consulted once per registration;
// Simplify is only called for objects it accepted.
type Simplifier interface {
	Supports(base Object) bool
	Simplify(base Object, quality float64) (Proxy, error)
}

// ScalableProxy is a proxy whose uniform scale can be set.
type ScalableProxy interface {
	Proxy
	SetScale(factor float64)
}

// Cloner is implemented by objects that can produce a detached copy of
// themselves.
type Cloner interface {
	Clone(name string) (ScalableProxy, error)
}

// ScaleSimplifier clones the base object and shrinks it uniformly by the
// level's quality. It is a placeholder for real decimation.
type ScaleSimplifier struct{}

// Supports reports whether base implements Cloner.
func (ScaleSimplifier) Supports(base Object) bool {
	_, ok := base.(Cloner)
	return ok
}

// Simplify implements Simplifier.
func (ScaleSimplifier) Simplify(base Object, quality float64) (Proxy, error) {
	cloner, ok := base.(Cloner)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, base.ID())
	}
	proxy, err := cloner.Clone(fmt.Sprintf("%s_lod_%.2f", base.ID(), quality))
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", base.ID(), err)
	}
	proxy.SetScale(math.Max(quality, MinScale))
	proxy.SetVisible(false)
	return proxy, nil
}
