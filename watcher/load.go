package watcher

import (
	"bytes"
	"io"

	"github.com/c2h5oh/datasize"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/allocview/allocview/ctf"
	"github.com/allocview/allocview/model"
)

// Decode decompresses a dump if needed and decodes it into the model.
// maxSize, when non-zero, bounds the size of the raw CTF data after
// decompression.
func Decode(data []byte, compressed bool, maxSize datasize.ByteSize) (model.Init, []model.Diff, *model.Registry, error) {
	if compressed {
		var err error
		data, err = gunzip(data, maxSize)
		if err != nil {
			return model.Init{}, nil, nil, err
		}
	} else if maxSize > 0 && datasize.ByteSize(len(data)) > maxSize {
		return model.Init{}, nil, nil, errors.Errorf(
			"dump is %s, larger than the configured maximum of %s",
			datasize.ByteSize(len(data)), maxSize)
	}

	reg := model.NewRegistry()
	init, diffs, err := ctf.Parse(data, reg)
	if err != nil {
		return model.Init{}, nil, nil, err
	}
	return init, diffs, reg, nil
}

func gunzip(data []byte, maxSize datasize.ByteSize) ([]byte, error) {
	g, err := gzip.NewReader(bytes.NewBuffer(data))
	if err != nil {
		return nil, errors.Wrap(err, "gzip open")
	}

	var r io.Reader = g
	if maxSize > 0 {
		r = io.LimitReader(g, int64(maxSize)+1)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "gzip read")
	}
	if maxSize > 0 && datasize.ByteSize(len(out)) > maxSize {
		return nil, errors.Errorf(
			"decompressed dump is larger than the configured maximum of %s", maxSize)
	}
	if err := g.Close(); err != nil {
		return nil, errors.Wrap(err, "gzip close")
	}
	return out, nil
}
