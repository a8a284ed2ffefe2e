package serialization

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
)

// Decode loads one object from path into obj, which must be a pointer. The format and compression
// come from the file name (see ParsePath):
//
//   var bank patches.Bank
//   err := serialization.Decode("/data/liberty.gob.gz", &bank)
func Decode(path string, obj interface{}) error {
	r, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error loading %s: %v", path, err)
	}
	defer r.Close()
	return DecodeAs(r, path, obj)
}

// DecodeAs is like Decode but reads from r, using path only to pick the codec
func DecodeAs(r io.Reader, path string, obj interface{}) error {
	format, comp, err := ParsePath(path)
	if err != nil {
		return err
	}
	rd, closeFn, err := comp.reader(r)
	if err != nil {
		return fmt.Errorf("error loading %s: %v", path, err)
	}
	defer closeFn()
	if err := format.decode(rd, obj); err != nil {
		return fmt.Errorf("error decoding %s: %v", path, err)
	}
	return nil
}

// Encode writes obj to path with the codec named by the file name. The object is written to a
// temporary file in the same directory which is then renamed over path, so readers never see a
// partially written file.
func Encode(path string, obj interface{}) error {
	if _, _, err := ParsePath(path); err != nil {
		return err
	}
	tmp, err := ioutil.TempFile(filepath.Dir(path), "."+filepath.Base(path)+".")
	if err != nil {
		return err
	}
	if err := EncodeAs(tmp, path, obj); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// EncodeAs writes obj to w, using path only to pick the codec. It flushes the compressor but does
// not close w.
func EncodeAs(w io.Writer, path string, obj interface{}) error {
	format, comp, err := ParsePath(path)
	if err != nil {
		return err
	}
	wr, closeFn, err := comp.writer(w)
	if err != nil {
		return fmt.Errorf("error encoding %s: %v", path, err)
	}
	if err := format.encode(wr, obj); err != nil {
		closeFn()
		return fmt.Errorf("error encoding %s: %v", path, err)
	}
	return closeFn()
}
