package config

import (
	"bytes"
	_ "embed"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"

	"github.com/koustreak/rowgate/internal/errs"
)

//go:embed config.cue
var schemaSource string

// cueValidate checks raw YAML against the embedded config.cue before it is
// decoded, so that type and enum mistakes are reported with their path.
func cueValidate(filename string, raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	ctx := cuecontext.New()
	configSchema := ctx.CompileString(schemaSource, cue.Filename("config.cue"))
	if err := configSchema.Err(); err != nil {
		return errs.Wrap(errs.ErrKindUnknown, "building config schema", err)
	}

	file, err := cueyaml.Extract(filename, raw)
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidValue, "decode yaml to cue", err)
	}
	data := ctx.BuildFile(file)
	if err := data.Err(); err != nil {
		return errs.Wrap(errs.ErrKindInvalidValue, "building yaml cue value", err)
	}

	unified := configSchema.LookupPath(cue.ParsePath("config")).Unify(data)
	if err := unified.Validate(); err != nil {
		return errs.Wrap(errs.ErrKindInvalidValue, "invalid config "+filename, err)
	}
	return nil
}
