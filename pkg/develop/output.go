package develop

import(
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"

	"github.com/abworrall/rawpipe/pkg/image16"
)

// hdrView is what the rgbe encoder sees: the same pixels, with an HDR
// color model. The plain image keeps RGBA64 for the 16-bit encoders.
type hdrView struct {
	*image16.Image
}

func (v hdrView)ColorModel() color.Model { return hdrcolor.RGBModel }
func (v hdrView)At(x, y int) color.Color { return v.HDRAt(x, y) }

// WriteImage picks the format from the extension. Radiance .hdr files
// get the linear [0,1] values; everything else goes through imaging,
// which keeps 16 bits for PNG and TIFF.
func WriteImage(img *image16.Image, filename string) error {
	if img == nil {
		return fmt.Errorf("write '%s': no image", filename)
	}

	if strings.ToLower(filepath.Ext(filename)) == ".hdr" {
		return writeHDR(img, filename)
	}

	if err := imaging.Save(img, filename); err != nil {
		return fmt.Errorf("save '%s': %v", filename, err)
	}
	return nil
}

func writeHDR(img *image16.Image, filename string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	}

	// A half written file is worse than none
	if err := rgbe.Encode(writer, hdrView{img}); err != nil {
		writer.Close()
		os.Remove(filename)
		return fmt.Errorf("rgbe encode '%s': %v", filename, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close '%s': %v", filename, err)
	}
	return nil
}
