// Package jobfile reads and writes pipeline jobs as JSON, YAML or msgpack.
// Decoding starts from the default profile, so a job that names only a few
// profile options keeps the defaults for the rest.
package jobfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/chazu/loam/pkg/geom"
	"github.com/chazu/loam/pkg/pipeline"
	"github.com/chazu/loam/pkg/profile"
)

// Format is a job encoding.
type Format string

const (
	JSON    Format = "json"
	YAML    Format = "yaml"
	Msgpack Format = "msgpack"
)

// ErrUnknownFormat is returned for an unrecognised format or extension.
var ErrUnknownFormat = errors.New("jobfile: unknown format")

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".yaml", ".yml":
		return YAML, nil
	case ".msgpack", ".mpk":
		return Msgpack, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
}

// ParseFormat maps a format name, as given on a command line, to a Format.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case JSON, YAML, Msgpack:
		return f, nil
	case "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// Load reads a job file, choosing the decoder from its extension.
func Load(path string) (pipeline.Job, error) {
	format, err := FormatOf(path)
	if err != nil {
		return pipeline.Job{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Job{}, fmt.Errorf("jobfile: %w", err)
	}
	job, err := Decode(data, format)
	if err != nil {
		return pipeline.Job{}, fmt.Errorf("%s: %w", path, err)
	}
	if job.Name == "" {
		job.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return job, nil
}

// Decode parses a job. Unknown fields are rejected for JSON and YAML.
//
// Curve id and layer are optional. When any curve leaves out its id, every
// curve is numbered by input position. A curve without a layer gets -1,
// which makes the pipeline group the whole job by height.
func Decode(data []byte, format Format) (pipeline.Job, error) {
	job := pipeline.Job{Profile: profile.Default()}
	var err error
	switch format {
	case JSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&job)
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(&job); errors.Is(err, io.EOF) {
			err = nil
		}
	case Msgpack:
		err = msgpack.Unmarshal(data, &job)
	default:
		return pipeline.Job{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return pipeline.Job{}, fmt.Errorf("jobfile: decode %s: %w", format, err)
	}
	if err := fillMissing(&job, data, format); err != nil {
		return pipeline.Job{}, fmt.Errorf("jobfile: decode %s: %w", format, err)
	}
	return job, nil
}

// curveKeys records which optional curve keys a document sets.
type curveKeys struct {
	Curves []struct {
		ID    *int `json:"id" yaml:"id" msgpack:"id"`
		Layer *int `json:"layer" yaml:"layer" msgpack:"layer"`
	} `json:"curves" yaml:"curves" msgpack:"curves"`
}

func fillMissing(job *pipeline.Job, data []byte, format Format) error {
	if len(job.Curves) == 0 {
		return nil
	}
	var keys curveKeys
	var err error
	switch format {
	case JSON:
		err = json.Unmarshal(data, &keys)
	case YAML:
		err = yaml.Unmarshal(data, &keys)
	case Msgpack:
		err = msgpack.Unmarshal(data, &keys)
	}
	if err != nil {
		return err
	}
	if len(keys.Curves) != len(job.Curves) {
		return fmt.Errorf("curve count mismatch: %d vs %d", len(keys.Curves), len(job.Curves))
	}

	renumber := false
	for i, k := range keys.Curves {
		if k.ID == nil {
			renumber = true
		}
		if k.Layer == nil {
			job.Curves[i].Layer = -1
		}
	}
	if renumber {
		job.Curves = geom.NumberCurves(job.Curves)
	}
	return nil
}

// Encode serialises a job.
func Encode(job pipeline.Job, format Format) ([]byte, error) {
	switch format {
	case JSON:
		return json.MarshalIndent(job, "", "  ")
	case YAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(job); err != nil {
			return nil, fmt.Errorf("jobfile: encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Msgpack:
		return msgpack.Marshal(job)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}
