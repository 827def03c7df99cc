package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/airmirror/internal/config"
	"github.com/bryanchriswhite/airmirror/internal/logger"
	"github.com/bryanchriswhite/airmirror/internal/window"
	"github.com/kbinani/screenshot"
)

// X11Capturer captures window content via X11 and screen regions via
// the platform screenshot library. Window capture gives a tight,
// content-accurate crop when the receiver window is resolvable; region
// capture is the always-available fallback.
type X11Capturer struct {
	conn             *xgb.Conn
	root             xproto.Window
	compositeEnabled bool
	mu               sync.Mutex
}

// NewX11Capturer creates a new X11 capturer
func NewX11Capturer() (*X11Capturer, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	root := setup.DefaultScreen(conn).Root

	return &X11Capturer{conn: conn, root: root}, nil
}

// Start initializes the Composite extension when available. Without it
// obscured or minimized windows may fail to capture, which the frame
// source handles by falling back to region capture.
func (c *X11Capturer) Start() error {
	log := logger.WithComponent("x11-capturer")

	if err := composite.Init(c.conn); err != nil {
		log.Warn().
			Err(err).
			Msg("Composite extension not available, obscured windows may not capture")
		c.compositeEnabled = false
	} else {
		c.compositeEnabled = true
		log.Info().Msg("Composite extension initialized")
	}

	return nil
}

// Stop closes the X11 connection
func (c *X11Capturer) Stop() error {
	c.conn.Close()
	return nil
}

// Name returns the capturer name
func (c *X11Capturer) Name() string {
	return "x11"
}

// CaptureWindow captures a window's current content.
func (c *X11Capturer) CaptureWindow(h window.Handle) (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	win := xproto.Window(h)

	attrs, err := xproto.GetWindowAttributes(c.conn, win).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get window attributes: %w", err)
	}
	if attrs.Class != xproto.WindowClassInputOutput || attrs.MapState != xproto.MapStateViewable {
		return nil, fmt.Errorf("window 0x%x is not viewable", uint32(h))
	}

	geom, err := xproto.GetGeometry(c.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get window geometry: %w", err)
	}
	if geom.Width == 0 || geom.Height == 0 {
		return nil, fmt.Errorf("window 0x%x has zero size", uint32(h))
	}

	return c.captureDrawable(win, geom)
}

// CaptureRegion captures a fixed region of the screen.
func (c *X11Capturer) CaptureRegion(bounds config.Geometry) (*image.RGBA, error) {
	if bounds.Width <= 0 || bounds.Height <= 0 {
		return nil, fmt.Errorf("invalid region dimensions: %dx%d", bounds.Width, bounds.Height)
	}

	rect := image.Rect(
		bounds.Left,
		bounds.Top,
		bounds.Left+bounds.Width,
		bounds.Top+bounds.Height,
	)
	img, err := screenshot.CaptureRect(rect)
	if err != nil {
		return nil, fmt.Errorf("failed to capture region: %w", err)
	}
	return img, nil
}

// captureDrawable captures a window's pixels, preferring a Composite
// pixmap so content survives partial occlusion.
func (c *X11Capturer) captureDrawable(win xproto.Window, geom *xproto.GetGeometryReply) (*image.RGBA, error) {
	drawable := xproto.Drawable(win)
	log := logger.WithComponent("x11-capturer")

	if c.compositeEnabled {
		if err := composite.RedirectWindowChecked(c.conn, win, composite.RedirectAutomatic).Check(); err == nil {
			defer composite.UnredirectWindow(c.conn, win, composite.RedirectAutomatic)

			pixmap, err := xproto.NewPixmapId(c.conn)
			if err == nil {
				if err := composite.NameWindowPixmapChecked(c.conn, win, pixmap).Check(); err == nil {
					drawable = xproto.Drawable(pixmap)
					defer xproto.FreePixmap(c.conn, pixmap)
				}
			}
		} else {
			log.Debug().
				Uint32("window_id", uint32(win)).
				Msg("Composite redirect failed, capturing window directly")
		}
	}

	reply, err := xproto.GetImage(
		c.conn,
		xproto.ImageFormatZPixmap,
		drawable,
		0, 0,
		geom.Width, geom.Height,
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return convertBGRA(reply.Data, int(geom.Width), int(geom.Height)), nil
}

// convertBGRA converts X11 ZPixmap data (BGRA) to an RGBA image.
func convertBGRA(data []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i+3 < len(data) && i/4 < width*height; i += 4 {
		j := i // RGBA stride matches the 4-byte ZPixmap stride
		img.Pix[j+0] = data[i+2]
		img.Pix[j+1] = data[i+1]
		img.Pix[j+2] = data[i+0]
		img.Pix[j+3] = 255
	}
	return img
}
