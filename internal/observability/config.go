package observability

// Config captures opt-in observability toggles that wire into the client.
type Config struct {
	EnablePprofTrace bool
	// Namespace prefixes every exported metric name.
	Namespace string
	// GoCollectors adds the Go runtime and process collectors to the registry.
	GoCollectors bool
}

// DefaultConfig returns the configuration used by the prism binary.
func DefaultConfig() Config {
	return Config{Namespace: "prism", GoCollectors: true}
}
