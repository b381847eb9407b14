// Package tags extracts the Ogg Opus user comments and cover art spec.md
// §4.2 step 7c calls for, using github.com/dhowden/tag the same way the
// teacher's internal/playlist/track.go does for its own metadata fields,
// and golang.org/x/image/draw's extensible Kernel type to perform the
// Lanczos cover resize (x/image/draw ships no Lanczos kernel built in, but
// exposes draw.Kernel{Support, At} as exactly the extension point its own
// CatmullRom/ApproxBiLinear kernels are built from).
package tags

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoding for image.Decode; some cover art ships as PNG
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	"golang.org/x/image/draw"

	"github.com/hazelmeow/musicopy/internal/errs"
	"github.com/hazelmeow/musicopy/internal/transcoder/ogg"
)

// coverSize is the fixed cover art output dimension spec.md §4.2 step 7c
// requires (500x500).
const coverSize = 500

// jpegQuality is the fixed re-encode quality spec.md §4.2 step 7c requires.
const jpegQuality = 90

// allowedKeys is the user-comment key whitelist spec.md §4.2 step 7c
// requires: {TITLE, ALBUM, TRACKNUMBER, ARTIST}.
var allowedKeys = []string{"TITLE", "ALBUM", "TRACKNUMBER", "ARTIST"}

// Extract reads path's tag metadata and returns the ordered list of
// "KEY=value" Ogg comment strings, including a trailing
// METADATA_BLOCK_PICTURE comment if a usable cover image is present.
func Extract(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindTranscode, "tags: open file", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		// Absent or unreadable tags are not fatal: spec.md says comments are
		// "sourced from the input metadata", which may simply be empty.
		return nil, nil
	}

	var comments []string
	if v := m.Title(); v != "" {
		comments = append(comments, "TITLE="+v)
	}
	if v := m.Album(); v != "" {
		comments = append(comments, "ALBUM="+v)
	}
	if num, _ := m.Track(); num != 0 {
		comments = append(comments, "TRACKNUMBER="+strconv.Itoa(num))
	}
	if v := m.Artist(); v != "" {
		comments = append(comments, "ARTIST="+v)
	}

	if pic := coverPicture(m); pic != nil {
		if comment, err := encodeCover(pic); err == nil {
			comments = append(comments, comment)
		}
	}

	return comments, nil
}

// picturesProvider is implemented by dhowden/tag's concrete per-format
// Metadata types when they keep every embedded picture, not just the one
// tag.Metadata.Picture() happens to return.
type picturesProvider interface {
	Pictures() []*tag.Picture
}

// coverPicture picks the front-cover image (ID3v2 picture type 3) when more
// than one is embedded, falling back to the first usable picture otherwise
// — the same "find front cover visual or first available" selection the
// original implementation does.
func coverPicture(m tag.Metadata) *tag.Picture {
	pics := []*tag.Picture{m.Picture()}
	if pp, ok := m.(picturesProvider); ok {
		if all := pp.Pictures(); len(all) > 0 {
			pics = all
		}
	}

	var best *tag.Picture
	for _, pic := range pics {
		if pic == nil || len(pic.Data) == 0 {
			continue
		}
		if best == nil {
			best = pic
		}
		if strings.Contains(strings.ToLower(pic.Type), "front") {
			return pic
		}
	}
	return best
}

// encodeCover resizes pic to coverSize×coverSize using a Lanczos filter,
// re-encodes as JPEG at jpegQuality, and wraps it in a
// METADATA_BLOCK_PICTURE comment per spec.md §4.2 step 7c.
func encodeCover(pic *tag.Picture) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(pic.Data))
	if err != nil {
		return "", errs.Wrap(errs.KindTranscode, "tags: decode cover image", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, coverSize, coverSize))
	lanczosKernel.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", errs.Wrap(errs.KindTranscode, "tags: encode cover jpeg", err)
	}

	return ogg.EncodePictureComment("image/jpeg", buf.Bytes()), nil
}

// lanczosA is the Lanczos kernel's support radius (a=3, a common choice
// balancing ringing against sharpness).
const lanczosA = 3.0

// lanczosKernel is a draw.Kernel implementing Lanczos resampling, built on
// x/image/draw's own extension point (the package ships Catmull-Rom and
// approximate bilinear kernels via this same mechanism, but no Lanczos
// kernel out of the box).
var lanczosKernel = draw.Kernel{
	Support: lanczosA,
	At:      lanczosAt,
}

func lanczosAt(x float64) float64 {
	if x == 0 {
		return 1
	}
	if x < -lanczosA || x > lanczosA {
		return 0
	}
	px := math.Pi * x
	return lanczosA * math.Sin(px) * math.Sin(px/lanczosA) / (px * px)
}
