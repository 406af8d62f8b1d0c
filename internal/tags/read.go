package tags

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// Read reads tag metadata and the stream duration of an audio file.
// A file without tags gets its base name as title.
func Read(path string) (*Tag, error) {
	t, err := readTags(path)
	if err != nil {
		return nil, err
	}

	// Duration is best effort; a damaged stream still has usable tags.
	if d, err := ReadDuration(path); err == nil {
		t.Duration = d
	}
	return t, nil
}

func readTags(path string) (*Tag, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		if strings.ToLower(filepath.Ext(path)) == ExtMP3 {
			// dhowden/tag has issues with some UTF-16 encoded ID3 tags
			return readMP3WithID3v2Fallback(path)
		}
		if err == tag.ErrNoTagsFound {
			return &Tag{Path: path, Title: baseTitle(path)}, nil
		}
		return nil, err
	}

	title := m.Title()
	if title == "" {
		title = baseTitle(path)
	}
	artist := m.Artist()
	if artist == "" {
		artist = m.AlbumArtist()
	}
	track, _ := m.Track()

	return &Tag{
		Path:        path,
		Title:       title,
		Artist:      artist,
		Album:       m.Album(),
		TrackNumber: track,
	}, nil
}

// baseTitle derives a title from the file name without extension.
func baseTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
