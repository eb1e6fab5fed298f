// Package language maps submission languages to sandbox runner
// configurations: which image to run, how to compile and how to
// execute a solution.
package language

import (
	"strconv"
	"strings"

	"github.com/google/shlex"

	"gavel/internal/submission"
	"gavel/pkg/errors"
)

// Command templates may reference two placeholders, substituted per
// judged submission.
const (
	placeholderSource   = "{source}"
	placeholderMemoryMB = "{memoryMB}"
)

// Spec is the config-file shape of a language runner: shell-like
// command templates that get parsed once at startup.
type Spec struct {
	Language        string `json:",optional"`
	Image           string `json:",optional"`
	SourceFilename  string `json:",optional"`
	CompileTemplate string `json:",optional"`
	RunTemplate     string `json:",optional"`
}

// RunnerConfig is a resolved language runner.
type RunnerConfig struct {
	Language submission.Language

	// Image is the container image solutions run in.
	Image string

	// SourceFilename is the filename the source is written as inside
	// the sandbox. Compilers like javac care about it.
	SourceFilename string

	compileArgv []string
	runArgv     []string
}

// NeedsCompilation reports whether the language has a compile step.
func (c RunnerConfig) NeedsCompilation() bool {
	return len(c.compileArgv) > 0
}

// CompileCommand renders the compile argv for the given source file.
func (c RunnerConfig) CompileCommand() []string {
	return substitute(c.compileArgv, c.SourceFilename, 0)
}

// RunCommand renders the run argv for the given memory limit.
func (c RunnerConfig) RunCommand(memoryLimitMB int64) []string {
	return substitute(c.runArgv, c.SourceFilename, memoryLimitMB)
}

func substitute(argv []string, source string, memoryMB int64) []string {
	out := make([]string, len(argv))
	for i, tok := range argv {
		tok = strings.ReplaceAll(tok, placeholderSource, source)
		tok = strings.ReplaceAll(tok, placeholderMemoryMB, strconv.FormatInt(memoryMB, 10))
		out[i] = tok
	}
	return out
}

// FromSpec parses a language spec into a runner config. Templates are
// split with shell quoting rules, so an image entrypoint like
// `sh -c "ulimit -s unlimited && ./main"` works.
func FromSpec(spec Spec) (RunnerConfig, error) {
	if spec.Language == "" {
		return RunnerConfig{}, errors.ValidationError("language", "must not be empty")
	}
	if spec.Image == "" {
		return RunnerConfig{}, errors.ValidationError("image", "must not be empty")
	}
	if spec.RunTemplate == "" {
		return RunnerConfig{}, errors.ValidationError("runTemplate", "must not be empty")
	}

	cfg := RunnerConfig{
		Language:       submission.Language(spec.Language),
		Image:          spec.Image,
		SourceFilename: spec.SourceFilename,
	}
	if cfg.SourceFilename == "" {
		cfg.SourceFilename = "main"
	}

	if spec.CompileTemplate != "" {
		argv, err := shlex.Split(spec.CompileTemplate)
		if err != nil {
			return RunnerConfig{}, errors.Wrapf(err, errors.InvalidParams,
				"parse compile template for %s", spec.Language)
		}
		cfg.compileArgv = argv
	}

	argv, err := shlex.Split(spec.RunTemplate)
	if err != nil {
		return RunnerConfig{}, errors.Wrapf(err, errors.InvalidParams,
			"parse run template for %s", spec.Language)
	}
	cfg.runArgv = argv
	return cfg, nil
}

// Registry resolves submission languages to runner configs.
type Registry struct {
	configs map[submission.Language]RunnerConfig
}

// NewRegistry builds a registry from specs. A later spec for the same
// language overrides an earlier one, which lets config files override
// the built-in defaults.
func NewRegistry(specs []Spec) (*Registry, error) {
	configs := make(map[submission.Language]RunnerConfig, len(specs))
	for _, spec := range specs {
		cfg, err := FromSpec(spec)
		if err != nil {
			return nil, err
		}
		configs[cfg.Language] = cfg
	}
	return &Registry{configs: configs}, nil
}

// Resolve returns the runner config for a language.
func (r *Registry) Resolve(lang submission.Language) (RunnerConfig, error) {
	cfg, ok := r.configs[lang]
	if !ok {
		return RunnerConfig{}, errors.Newf(errors.ConfigurationNotFound,
			"no runner configured for language %s", lang)
	}
	return cfg, nil
}

// Languages lists the registered languages.
func (r *Registry) Languages() []submission.Language {
	langs := make([]submission.Language, 0, len(r.configs))
	for lang := range r.configs {
		langs = append(langs, lang)
	}
	return langs
}

// DefaultSpecs are the built-in runners for the stock languages.
func DefaultSpecs() []Spec {
	return []Spec{
		{
			Language:        string(submission.LanguageCPP17),
			Image:           "gcc:14",
			SourceFilename:  "main.cpp",
			CompileTemplate: "g++ -O2 -std=c++17 -o main {source}",
			RunTemplate:     "./main",
		},
		{
			Language:        string(submission.LanguageJava21),
			Image:           "eclipse-temurin:21",
			SourceFilename:  "Main.java",
			CompileTemplate: "javac {source}",
			RunTemplate:     "java -Xss256m -Xmx{memoryMB}m Main",
		},
		{
			Language:       string(submission.LanguagePython312),
			Image:          "python:3.12-alpine",
			SourceFilename: "main.py",
			RunTemplate:    "python3 {source}",
		},
	}
}
