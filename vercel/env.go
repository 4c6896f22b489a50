package vercel

import "os"

// Env reads deployment configuration.
type Env interface {
	Get(key string) (string, bool)
}

// EnvFunc adapts a lookup function to Env.
type EnvFunc func(key string) (string, bool)

func (f EnvFunc) Get(key string) (string, bool) { return f(key) }

// OSEnv reads the process environment.
var OSEnv Env = EnvFunc(os.LookupEnv)

// MapEnv is a fixed environment, handy in tests.
type MapEnv map[string]string

func (m MapEnv) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}
