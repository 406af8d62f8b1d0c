package tags

import (
	"errors"
	"io"
	"os"

	"github.com/dhowden/tag"
)

// ErrNotAudio is returned by Sniff for content that is not a known audio stream.
var ErrNotAudio = errors.New("not an audio file")

// Sniff inspects the start of a file and returns its audio file type
// ("MP3", "FLAC", ...). Error pages served in place of a stream fail
// with ErrNotAudio.
func Sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, typ, err := tag.Identify(f); err == nil && typ != tag.UnknownFileType {
		return string(typ), nil
	}

	// Untagged MP3 streams start directly with a frame header.
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	head := make([]byte, 3)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return "", ErrNotAudio
		}
		return "", err
	}
	head = head[:n]
	switch {
	case n >= 3 && string(head) == id3Magic:
		return string(tag.MP3), nil
	case n >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return string(tag.MP3), nil
	}
	return "", ErrNotAudio
}
