// Package tagging writes metadata tags to produced stem files so they
// group correctly in music library software.
package tagging

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"
)

// StemTag is the metadata written to one stem file.
type StemTag struct {
	Title   string // e.g. "My Song (Vocals)"
	Album   string // e.g. "My Song - Stems"
	Artist  string
	Track   int
	Picture []byte // optional cover art image bytes
}

func detectMIME(data []byte) string {
	mime := http.DetectContentType(data)
	if idx := strings.Index(mime, ";"); idx != -1 {
		mime = strings.TrimSpace(mime[:idx])
	}
	return mime
}

// TagStem writes tags to the file at path, dispatching on extension.
// Unsupported formats are left untagged without error so a tagging gap
// never fails a finished job.
func TagStem(path string, tag StemTag) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return tagMP3(path, tag)
	case ".flac":
		return tagFLAC(path, tag)
	default:
		return nil
	}
}

func tagMP3(path string, tag StemTag) error {
	t, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		// Encoder output usually carries no tag header at all; start
		// from an empty tag instead of failing the job.
		t, err = id3v2.Open(path, id3v2.Options{Parse: false})
		if err != nil {
			return fmt.Errorf("failed to open MP3 file: %w", err)
		}
	}
	defer t.Close()

	t.SetVersion(4)
	if tag.Title != "" {
		t.SetTitle(tag.Title)
	}
	if tag.Album != "" {
		t.SetAlbum(tag.Album)
	}
	if tag.Artist != "" {
		t.SetArtist(tag.Artist)
	}
	if tag.Track > 0 {
		t.AddTextFrame(t.CommonID("Track number/Position in set"), t.DefaultEncoding(), fmt.Sprintf("%d", tag.Track))
	}
	if len(tag.Picture) > 0 {
		t.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    detectMIME(tag.Picture),
			PictureType: id3v2.PTFrontCover,
			Description: "Front Cover",
			Picture:     tag.Picture,
		})
	}

	return t.Save()
}

func tagFLAC(path string, tag StemTag) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed to parse FLAC file: %w", err)
	}

	cmt := flacvorbis.New()
	add := func(field, value string) {
		if value != "" {
			// Add only errors on embedded '=' in the field name, which
			// the fixed fields below never carry.
			_ = cmt.Add(field, value)
		}
	}
	add(flacvorbis.FIELD_TITLE, tag.Title)
	add(flacvorbis.FIELD_ALBUM, tag.Album)
	add(flacvorbis.FIELD_ARTIST, tag.Artist)
	if tag.Track > 0 {
		add(flacvorbis.FIELD_TRACKNUMBER, fmt.Sprintf("%d", tag.Track))
	}
	block := cmt.Marshal()

	// Replace any existing comment block rather than stacking a second
	// one.
	replaced := false
	for i, m := range f.Meta {
		if m.Type == flac.VorbisComment {
			f.Meta[i] = &block
			replaced = true
			break
		}
	}
	if !replaced {
		f.Meta = append(f.Meta, &block)
	}

	if len(tag.Picture) > 0 {
		pic, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "Front Cover", tag.Picture, detectMIME(tag.Picture))
		if err != nil {
			return fmt.Errorf("failed to build picture block: %w", err)
		}
		picBlock := pic.Marshal()
		f.Meta = append(f.Meta, &picBlock)
	}

	return f.Save(path)
}
