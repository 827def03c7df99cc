package window

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/airmirror/internal/config"
	"github.com/bryanchriswhite/airmirror/internal/logger"
)

// X11Backend implements the Backend interface using X11
type X11Backend struct {
	conn *xgb.Conn
	root xproto.Window
}

// NewX11Backend connects to the X server and resolves the root window.
func NewX11Backend() (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	root := setup.DefaultScreen(conn).Root

	return &X11Backend{conn: conn, root: root}, nil
}

// Close closes the X11 connection
func (b *X11Backend) Close() error {
	b.conn.Close()
	return nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

// GetConn returns the X11 connection (shared with the capturer)
func (b *X11Backend) GetConn() *xgb.Conn {
	return b.conn
}

// FindWindow returns the first visible window whose title contains the
// given substring, case-insensitive. Any X error along the way is
// treated as "not found"; the caller's fallback path handles both.
func (b *X11Backend) FindWindow(titleSubstring string) (Handle, bool) {
	windows, err := b.ListWindows()
	if err != nil {
		logger.WithComponent("x11-backend").Debug().
			Err(err).
			Str("title", titleSubstring).
			Msg("FindWindow: window list query failed")
		return 0, false
	}

	needle := strings.ToLower(titleSubstring)
	for _, info := range windows {
		if strings.Contains(strings.ToLower(info.Title), needle) {
			return Handle(info.ID), true
		}
	}
	return 0, false
}

// MoveWindow moves and resizes the window to the given bounds.
func (b *X11Backend) MoveWindow(h Handle, bounds config.Geometry) error {
	const mask = xproto.ConfigWindowX | xproto.ConfigWindowY |
		xproto.ConfigWindowWidth | xproto.ConfigWindowHeight

	err := xproto.ConfigureWindowChecked(
		b.conn,
		xproto.Window(h),
		mask,
		[]uint32{
			uint32(bounds.Left),
			uint32(bounds.Top),
			uint32(bounds.Width),
			uint32(bounds.Height),
		},
	).Check()
	if err != nil {
		return fmt.Errorf("failed to configure window 0x%x: %w", uint32(h), err)
	}
	return nil
}

// ListWindows returns all visible windows using EWMH _NET_CLIENT_LIST
// with a QueryTree fallback for window managers that don't publish it.
func (b *X11Backend) ListWindows() ([]Info, error) {
	log := logger.WithComponent("x11-backend")

	windows, err := b.listWindowsEWMH()
	if err == nil && len(windows) > 0 {
		return windows, nil
	}
	if err != nil {
		log.Debug().Err(err).Msg("ListWindows: EWMH failed, falling back to QueryTree")
	}

	return b.listWindowsQueryTree()
}

// listWindowsEWMH gets windows from _NET_CLIENT_LIST (EWMH standard)
func (b *X11Backend) listWindowsEWMH() ([]Info, error) {
	clientListAtom, err := b.getAtom("_NET_CLIENT_LIST")
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST atom: %w", err)
	}

	reply, err := xproto.GetProperty(
		b.conn,
		false,
		b.root,
		clientListAtom,
		xproto.GetPropertyTypeAny,
		0,
		(1<<32)-1,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST property: %w", err)
	}
	if reply.ValueLen == 0 {
		return nil, fmt.Errorf("_NET_CLIENT_LIST is empty")
	}

	// The property is an array of 32-bit window IDs
	windows := make([]Info, 0, reply.ValueLen)
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		winID := xproto.Window(uint32(reply.Value[i]) |
			uint32(reply.Value[i+1])<<8 |
			uint32(reply.Value[i+2])<<16 |
			uint32(reply.Value[i+3])<<24)

		info, err := b.getWindowInfo(winID)
		if err != nil {
			continue
		}
		if info.Title == "" && info.Class == "" {
			continue
		}
		windows = append(windows, info)
	}

	return windows, nil
}

// listWindowsQueryTree gets windows by querying root window children
func (b *X11Backend) listWindowsQueryTree() ([]Info, error) {
	tree, err := xproto.QueryTree(b.conn, b.root).Reply()
	if err != nil {
		return nil, err
	}

	windows := make([]Info, 0, len(tree.Children))
	for _, child := range tree.Children {
		info, err := b.getWindowInfo(child)
		if err != nil {
			continue
		}
		if info.Title == "" && info.Class == "" {
			continue
		}
		windows = append(windows, info)
	}

	return windows, nil
}

// getWindowInfo retrieves information about a window
func (b *X11Backend) getWindowInfo(win xproto.Window) (Info, error) {
	info := Info{ID: uint32(win)}

	geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(win)).Reply()
	if err == nil {
		info.Geometry = config.Geometry{
			Left:   int(geom.X),
			Top:    int(geom.Y),
			Width:  int(geom.Width),
			Height: int(geom.Height),
		}
	}

	// Prefer the EWMH title, fall back to WM_NAME
	if titleAtom, err := b.getAtom("_NET_WM_NAME"); err == nil {
		if title, err := b.getProperty(win, titleAtom); err == nil {
			info.Title = title
		}
	}
	if info.Title == "" {
		if titleAtom, err := b.getAtom("WM_NAME"); err == nil {
			if title, err := b.getProperty(win, titleAtom); err == nil {
				info.Title = title
			}
		}
	}

	// WM_CLASS format is: instance\0class\0 (two null-terminated strings)
	if classAtom, err := b.getAtom("WM_CLASS"); err == nil {
		if classRaw, err := b.getProperty(win, classAtom); err == nil {
			parts := strings.Split(classRaw, "\x00")
			if len(parts) >= 2 && parts[1] != "" {
				info.Class = parts[1]
			} else if len(parts) >= 1 && parts[0] != "" {
				info.Class = parts[0]
			}
		}
	}

	return info, nil
}

// getAtom gets an atom ID by name
func (b *X11Backend) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

// getProperty gets a property value as a string
func (b *X11Backend) getProperty(win xproto.Window, atom xproto.Atom) (string, error) {
	reply, err := xproto.GetProperty(
		b.conn,
		false,
		win,
		atom,
		xproto.GetPropertyTypeAny,
		0,
		(1<<32)-1,
	).Reply()
	if err != nil {
		return "", err
	}
	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property")
	}
	return string(reply.Value), nil
}
