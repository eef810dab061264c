package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/3leaps/wheelfetch/internal/hostenv"
	"github.com/3leaps/wheelfetch/internal/tags"
)

// platformTags computes the tag set once per invocation. An explicit tag
// list wins; a pinned python.version skips the interpreter probe.
func platformTags(ctx context.Context, cfg Config) (*tags.Set, error) {
	if len(cfg.Platform.Tags) > 0 {
		set, err := tags.ParseList(cfg.Platform.Tags)
		if err != nil {
			return nil, fmt.Errorf("platform.tags: %w", err)
		}
		return set, nil
	}

	in, err := interpreter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"component":      "platform",
		"implementation": in.Implementation,
		"python":         in.Python.String(),
		"platform":       in.Platform,
		"glibc":          in.Glibc.String(),
		"musl":           in.Musl.String(),
	}).Debug("interpreter facts")
	return tags.ForInterpreter(in), nil
}

func interpreter(ctx context.Context, cfg Config) (hostenv.Interpreter, error) {
	if cfg.Python.Version == "" {
		in, err := hostenv.Probe(ctx, cfg.Python.Executable)
		if err != nil {
			return hostenv.Interpreter{}, fmt.Errorf("probe %s: %w", cfg.Python.Executable, err)
		}
		return in, nil
	}

	version, err := hostenv.ParseVersion(cfg.Python.Version)
	if err != nil {
		return hostenv.Interpreter{}, fmt.Errorf("python.version: %w", err)
	}
	in, err := hostenv.FromRuntime(version)
	if err != nil {
		return hostenv.Interpreter{}, err
	}
	pins := []struct {
		key    string
		value  string
		target *hostenv.Version
	}{
		{"platform.glibc", cfg.Platform.Glibc, &in.Glibc},
		{"platform.musl", cfg.Platform.Musl, &in.Musl},
		{"platform.macos", cfg.Platform.MacOS, &in.MacOS},
	}
	for _, pin := range pins {
		if pin.value == "" {
			continue
		}
		v, err := hostenv.ParseVersion(pin.value)
		if err != nil {
			return hostenv.Interpreter{}, fmt.Errorf("%s: %w", pin.key, err)
		}
		*pin.target = v
	}
	if in.OS == "darwin" && in.MacOS.IsZero() {
		in.MacOS = hostenv.Version{Major: 11, Minor: 0}
	}
	return in, nil
}
