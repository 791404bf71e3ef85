package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/factopt/pkg/engine"
)

// Loader reads factory documents in YAML, JSON or CUE and converts them to
// engine factories.
type Loader struct {
	logger    zerolog.Logger
	validator *validator.Validate
	starlark  *StarlarkEvaluator
	cue       *CUEParser
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithScriptTimeout bounds every parameter script. Zero disables scripts.
func WithScriptTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d == 0 {
			l.starlark = nil
			return
		}
		l.starlark = NewStarlarkEvaluator(d)
	}
}

// NewLoader creates a new factory loader.
func NewLoader(logger zerolog.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		logger:    logger.With().Str("component", "config-loader").Logger(),
		validator: validator.New(),
		starlark:  NewStarlarkEvaluator(5 * time.Second),
		cue:       NewCUEParser(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FormatOf infers the document format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	}
	return "", fmt.Errorf("unsupported factory file %q: want .yaml, .yml, .json or .cue", path)
}

// Load reads and converts the factory at path. The returned factory is not
// frozen.
func (l *Loader) Load(ctx context.Context, path string) (*engine.Factory, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, engine.NewConfigurationError("cannot load factory", err).WithResource(path)
	}

	var fc *FactoryConfig
	if format == FormatCUE {
		parsed, err := l.cue.Parse(ctx, []string{path})
		if err != nil {
			return nil, engine.NewConfigurationError("cannot load factory", err).WithResource(path)
		}
		if len(parsed.Errors) > 0 {
			return nil, validationErrors(path, parsed.Errors)
		}
		fc = parsed.Factory
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, engine.NewConfigurationError("cannot read factory", err).WithResource(path)
		}
		fc, err = l.Decode(data, format)
		if err != nil {
			return nil, engine.NewConfigurationError("cannot decode factory", err).WithResource(path)
		}
	}

	f, err := l.Convert(ctx, fc)
	if err != nil {
		return nil, err
	}

	l.logger.Debug().
		Str("path", path).
		Str("factory", f.Name).
		Int("components", len(f.Components)).
		Int("connections", len(f.Connections)).
		Msg("Factory loaded")

	return f, nil
}

// LoadBytes converts an in-memory document.
func (l *Loader) LoadBytes(ctx context.Context, data []byte, format Format) (*engine.Factory, error) {
	var fc *FactoryConfig
	var err error
	if format == FormatCUE {
		parsed, perr := l.cue.ParseInline(ctx, string(data))
		if perr != nil {
			return nil, engine.NewConfigurationError("cannot parse factory", perr)
		}
		if len(parsed.Errors) > 0 {
			return nil, validationErrors("inline", parsed.Errors)
		}
		fc = parsed.Factory
	} else {
		fc, err = l.Decode(data, format)
		if err != nil {
			return nil, engine.NewConfigurationError("cannot decode factory", err)
		}
	}
	return l.Convert(ctx, fc)
}

// Decode parses a YAML or JSON document. Unknown fields are rejected.
func (l *Loader) Decode(data []byte, format Format) (*FactoryConfig, error) {
	var fc FactoryConfig
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&fc); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	return &fc, nil
}

// Validate checks the document structure with its struct tags and returns
// one ValidationError per violated field.
func (l *Loader) Validate(fc *FactoryConfig) []ValidationError {
	err := l.validator.Struct(fc)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Message: err.Error(), Severity: "error"}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Path:     documentPath(fe.Namespace()),
			Message:  fieldMessage(fe),
			Severity: "error",
		})
	}
	return out
}

// Convert validates the document and builds the engine factory. Parameter
// errors of all components are collected before returning.
func (l *Loader) Convert(ctx context.Context, fc *FactoryConfig) (*engine.Factory, error) {
	if fc == nil {
		return nil, engine.NewConfigurationError("empty factory document", nil)
	}
	if errs := l.Validate(fc); len(errs) > 0 {
		return nil, validationErrors(fc.Name, errs)
	}

	trf := fc.TimeReferenceFactor
	if trf == 0 {
		trf = 1
	}

	f := &engine.Factory{
		Name:                 fc.Name,
		Horizon:              fc.Horizon,
		TimeReferenceFactor:  trf,
		Currency:             fc.Currency,
		AllowPrimaryFallback: fc.AllowPrimaryFallback,
		Flowtypes:            make([]engine.Flowtype, 0, len(fc.Flowtypes)),
		Components:           make([]engine.Component, 0, len(fc.Components)),
		Connections:          make([]engine.Connection, 0, len(fc.Connections)),
	}

	for _, ft := range fc.Flowtypes {
		factor := ft.Unit.ConversionFactor
		if factor == 0 {
			factor = 1
		}
		name := ft.Name
		if name == "" {
			name = ft.Key
		}
		f.Flowtypes = append(f.Flowtypes, engine.Flowtype{
			Key:   ft.Key,
			Name:  name,
			Color: ft.Color,
			Unit: engine.Unit{
				QuantityType:     engine.QuantityType(ft.Unit.QuantityType),
				ConversionFactor: factor,
				Magnitudes:       ft.Unit.Magnitudes,
			},
		})
	}

	var errs error
	for _, cc := range fc.Components {
		comp := engine.Component{
			Key:    cc.Key,
			Name:   cc.Name,
			Type:   engine.ComponentType(cc.Type),
			Events: cc.Events,
		}
		if len(cc.Params) > 0 {
			comp.Params = make(map[string]engine.Value, len(cc.Params))
		}
		for name, p := range cc.Params {
			v, err := p.ToValue(ctx, l.starlark, fc.Horizon, trf)
			if err != nil {
				errs = multierr.Append(errs, engine.NewConfigurationError(
					fmt.Sprintf("parameter %s: %v", name, err), nil).
					WithCode(engine.ErrCodeParameter).
					WithResource(cc.Key))
				continue
			}
			comp.Params[name] = v
		}
		f.Components = append(f.Components, comp)
	}
	if errs != nil {
		return nil, errs
	}

	for _, cc := range fc.Connections {
		f.Connections = append(f.Connections, engine.Connection{
			Key:               cc.Key,
			From:              cc.From,
			To:                cc.To,
			Flowtype:          cc.Flowtype,
			WeightOrigin:      cc.WeightOrigin,
			WeightDestination: cc.WeightDestination,
			ToLosses:          cc.ToLosses,
		})
	}

	return f, nil
}

// validationErrors folds document errors into one configuration error per
// entry, combined with multierr.
func validationErrors(resource string, verrs []ValidationError) error {
	var errs error
	for _, ve := range verrs {
		errs = multierr.Append(errs, engine.NewConfigurationError(ve.Error(), nil).
			WithCode(engine.ErrCodeValidation).
			WithResource(resource))
	}
	return errs
}

// documentPath turns a validator namespace such as
// "FactoryConfig.Components[1].Type" into "components[1].type".
func documentPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snakeCase(p)
	}
	return strings.Join(parts, ".")
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && s[i-1] != '[' {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "min":
		return fmt.Sprintf("needs at least %s entries", fe.Param())
	case "nefield":
		return fmt.Sprintf("must differ from %s", snakeCase(fe.Param()))
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}

func fmtLocation(file string, line, column int) string {
	if column > 0 {
		return fmt.Sprintf("%s:%d:%d", file, line, column)
	}
	return fmt.Sprintf("%s:%d", file, line)
}
