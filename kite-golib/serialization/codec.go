package serialization

import (
	"compress/bzip2"
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
)

// Format is the object encoding of a file, named by its extension
type Format string

const (
	// Gob is encoding/gob, used for patch banks, weight maps and checkpoints
	Gob Format = ".gob"
	// JSON is encoding/json, used for human-inspectable files
	JSON Format = ".json"
)

// Compression is an optional stream compression, named by a suffix after the format extension
type Compression string

const (
	// None leaves the stream uncompressed
	None Compression = ""
	// Gzip is compress/gzip
	Gzip Compression = ".gz"
	// Bzip2 is compress/bzip2; it can only be decoded
	Bzip2 Compression = ".bz2"
	// Snappy is the snappy framing format
	Snappy Compression = ".sz"
)

// ParsePath splits a path such as liberty.gob.gz into its format and compression
func ParsePath(path string) (Format, Compression, error) {
	comp := None
	for _, c := range []Compression{Gzip, Bzip2, Snappy} {
		if strings.HasSuffix(path, string(c)) {
			comp = c
			path = strings.TrimSuffix(path, string(c))
			break
		}
	}
	for _, f := range []Format{Gob, JSON} {
		if strings.HasSuffix(path, string(f)) {
			return f, comp, nil
		}
	}
	return "", "", fmt.Errorf("no codec for %s: expected .gob or .json, optionally followed by .gz, .bz2 or .sz", path)
}

func (c Compression) reader(r io.Reader) (io.Reader, func() error, error) {
	switch c {
	case Gzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gz, gz.Close, nil
	case Bzip2:
		return bzip2.NewReader(r), noop, nil
	case Snappy:
		return snappy.NewReader(r), noop, nil
	default:
		return r, noop, nil
	}
}

func (c Compression) writer(w io.Writer) (io.Writer, func() error, error) {
	switch c {
	case Gzip:
		gz := gzip.NewWriter(w)
		return gz, gz.Close, nil
	case Snappy:
		sz := snappy.NewBufferedWriter(w)
		return sz, sz.Close, nil
	case Bzip2:
		return nil, nil, fmt.Errorf("bzip2 streams can only be decoded")
	default:
		return w, noop, nil
	}
}

func (f Format) decode(r io.Reader, obj interface{}) error {
	if f == JSON {
		return json.NewDecoder(r).Decode(obj)
	}
	return gob.NewDecoder(r).Decode(obj)
}

func (f Format) encode(w io.Writer, obj interface{}) error {
	if f == JSON {
		return json.NewEncoder(w).Encode(obj)
	}
	return gob.NewEncoder(w).Encode(obj)
}

func noop() error { return nil }
