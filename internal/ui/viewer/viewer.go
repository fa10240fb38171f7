// Package viewer is the interactive Gio window for browsing the layers of
// a G-code file, with per-object thumbnails and live reload.
package viewer

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"

	"gioui.org/app"
	"gioui.org/io/event"
	"gioui.org/io/key"
	"gioui.org/io/pointer"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"gioui.org/x/explorer"
	"github.com/oligo/gioview/menu"
	"github.com/oligo/gioview/theme"
	"golang.org/x/exp/shiny/materialdesign/icons"

	"github.com/OpenTraceLab/OpenTraceGCode/internal/config"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/gcode"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/render/layer"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/render/thumbnail"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/style"
	"github.com/OpenTraceLab/OpenTraceGCode/pkg/task"
)

const (
	thumbColumnWidth = 120 // dp
	toolbarHeight    = 96  // dp, toolbar plus layer and status bars
)

// Option configures an App
type Option func(*App)

// WithLogger sets the logger shared with the renderers
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithWatch reloads the open file whenever it changes on disk
func WithWatch(enabled bool) Option {
	return func(a *App) { a.watch = enabled }
}

type loadResult struct {
	path string
	file *gcode.File
	err  error
}

type thumbView struct {
	name string
	img  paint.ImageOp
}

// App is the viewer window. All methods except the ones documented
// otherwise must be called from the goroutine running Run.
type App struct {
	window *app.Window
	ops    op.Ops
	logger *slog.Logger
	cfg    *config.Config
	watch  bool
	quit   bool

	gvTheme  *theme.Theme
	palette  style.Palette
	openIcon *widget.Icon
	fitIcon  *widget.Icon

	openBtn     widget.Clickable
	fitBtn      widget.Clickable
	viewBtn     widget.Clickable
	ghostBox    widget.Bool
	travelBox   widget.Bool
	layerSlider widget.Float
	thumbList   widget.List
	viewMenu    *menu.DropdownMenu

	explorer *explorer.Explorer
	watcher  *fileWatcher
	// requests carries paths from the file picker and the watcher
	requests chan string

	renderer *layer.Renderer
	canvas   *surface
	thumbs   *thumbnail.Renderer

	loadTask   task.Task
	loaded     task.Handoff[loadResult]
	thumbReady task.Handoff[*thumbnail.Set]

	file       *gcode.File
	path       string
	thumbViews []thumbView
	status     string
}

// New creates the viewer for window w using cfg. A nil window or config
// is replaced by a new window or the defaults.
func New(w *app.Window, cfg *config.Config, opts ...Option) *App {
	if w == nil {
		w = new(app.Window)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	w.Option(
		app.Title("OpenTrace G-code Viewer"),
		app.Size(unit.Dp(float32(cfg.CanvasWidth+thumbColumnWidth)), unit.Dp(float32(cfg.CanvasHeight+toolbarHeight))),
	)

	a := &App{
		window:   w,
		logger:   slog.Default(),
		cfg:      cfg,
		gvTheme:  theme.NewTheme("", nil, true),
		palette:  cfg.Palette(),
		requests: make(chan string, 4),
		status:   "No file loaded",
	}
	for _, opt := range opts {
		opt(a)
	}

	a.renderer = layer.New(a.palette,
		layer.WithLogger(a.logger),
		layer.WithViewMode(cfg.View()),
		layer.WithCanvasSize(cfg.CanvasWidth, cfg.CanvasHeight),
	)
	a.renderer.SetGhostMode(cfg.GhostMode)
	a.renderer.SetShowTravels(cfg.ShowTravels)
	a.ghostBox.Value = cfg.GhostMode
	a.travelBox.Value = cfg.ShowTravels
	a.canvas = newSurface(cfg.CanvasWidth, cfg.CanvasHeight)
	a.thumbs = thumbnail.NewRenderer(thumbnail.WithLogger(a.logger))

	if icon, err := widget.NewIcon(icons.FileFolderOpen); err == nil {
		a.openIcon = icon
	}
	if icon, err := widget.NewIcon(icons.ActionZoomIn); err == nil {
		a.fitIcon = icon
	}
	a.viewMenu = a.buildViewMenu()
	a.explorer = explorer.NewExplorer(w)
	a.thumbList.Axis = layout.Vertical
	return a
}

// Run opens a viewer window, loading path when it is not empty, and hands
// the main goroutine to Gio. The process exits when the window closes.
func Run(path string, cfg *config.Config, opts ...Option) error {
	go func() {
		v := New(nil, cfg, opts...)
		if path != "" {
			v.Open(path)
		}
		if err := v.Run(); err != nil {
			v.logger.Error("[Viewer] Window closed with error", "error", err)
		}
		os.Exit(0)
	}()

	app.Main()
	return nil
}

// Open starts loading path in the background
func (a *App) Open(path string) {
	a.load(path)
}

// Run blocks processing window events until the window closes or the
// user quits
func (a *App) Run() error {
	defer a.close()
	for {
		switch e := a.window.Event().(type) {
		case app.DestroyEvent:
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&a.ops, e)
			a.update()
			a.layout(gtx)
			e.Frame(gtx.Ops)
			if a.quit {
				return nil
			}
		}
	}
}

// Logf records a status message and forwards it to the logger
func (a *App) Logf(format string, args ...any) {
	a.status = fmt.Sprintf(format, args...)
	a.logger.Info(a.status)
	a.window.Invalidate()
}

func (a *App) close() {
	a.loadTask.Close()
	a.thumbs.Close()
	a.renderer.Close()
	if a.watcher != nil {
		a.watcher.Close()
		a.watcher = nil
	}
}

// update adopts the results of background work
func (a *App) update() {
drain:
	for {
		select {
		case path := <-a.requests:
			a.load(path)
		default:
			break drain
		}
	}
	if res, ok := a.loaded.Take(); ok {
		a.applyLoad(res)
	}
	if set, ok := a.thumbReady.Take(); ok {
		a.thumbViews = a.thumbViews[:0]
		for i := range set.Thumbnails {
			t := &set.Thumbnails[i]
			a.thumbViews = append(a.thumbViews, thumbView{name: t.Object, img: paint.NewImageOp(t.Image())})
		}
		a.logger.Debug("[Viewer] Thumbnails ready", "count", set.Len())
	}
}

// request queues a path from a background goroutine. It may be called
// from any goroutine.
func (a *App) request(path string) {
	select {
	case a.requests <- path:
	default:
		a.logger.Warn("[Viewer] Dropping load request", "path", path)
	}
	a.window.Invalidate()
}

func (a *App) load(path string) {
	opts := append(a.cfg.ParserOptions(), gcode.WithLogger(a.logger))
	// The previous load must be joined before its handoff is cleared
	a.loadTask.Cancel()
	a.loaded.Reset()
	a.Logf("[INFO] Loading %s", filepath.Base(path))
	a.loadTask.Start(func(ctx context.Context) {
		f, err := gcode.ParseFileContext(ctx, path, opts...)
		if ctx.Err() != nil {
			return
		}
		a.loaded.Publish(loadResult{path: path, file: f, err: err})
		a.window.Invalidate()
	})
}

func (a *App) applyLoad(res loadResult) {
	if res.err != nil {
		a.Logf("[ERROR] Failed to load %s: %v", filepath.Base(res.path), res.err)
		return
	}

	// Stop readers of the old file before it is dropped
	a.thumbs.Cancel()
	a.thumbReady.Reset()
	a.thumbViews = nil

	a.file = res.file
	a.path = res.path
	a.renderer.SetGCode(a.file)
	top := a.file.LayerCount() - 1
	a.renderer.SetCurrentLayer(top)
	a.layerSlider.Value = layerFraction(top, a.file.LayerCount())

	size := a.cfg.ThumbnailSize
	a.thumbs.RenderAsync(a.file, size, size, a.filamentColor(), func(set *thumbnail.Set) {
		a.thumbReady.Publish(set)
		a.window.Invalidate()
	})
	a.watchPath(res.path)
	a.window.Option(app.Title("OpenTrace G-code Viewer - " + filepath.Base(a.path)))

	a.Logf("[INFO] Loaded %s: %d layers, %d segments, %d objects",
		filepath.Base(res.path), a.file.LayerCount(), a.file.TotalSegments, len(a.file.Objects))
}

// filamentColor picks the thumbnail color: the configured override, the
// slicer's filament color, then the theme
func (a *App) filamentColor() color.NRGBA {
	if a.cfg.FilamentColor == "" && a.file != nil {
		if c, err := style.ParseHex(a.file.Metadata.FilamentColorHex); err == nil {
			return c
		}
	}
	return a.palette.Extrusion
}

func (a *App) watchPath(path string) {
	if !a.watch {
		return
	}
	if a.watcher != nil {
		if abs, err := filepath.Abs(path); err == nil && abs == a.watcher.path {
			return
		}
		a.watcher.Close()
		a.watcher = nil
	}
	w, err := watchFile(path, a.logger, func() { a.request(path) })
	if err != nil {
		a.Logf("[ERROR] %v", err)
		return
	}
	a.watcher = w
}

func (a *App) openFilePicker() {
	go func() {
		file, err := a.explorer.ChooseFile("gcode", "gco", "g")
		if err != nil {
			if err != explorer.ErrUserDecline {
				a.logger.Error("[Viewer] File picker failed", "error", err)
			}
			return
		}
		defer file.Close()

		if f, ok := file.(*os.File); ok {
			a.request(f.Name())
		} else {
			a.logger.Error("[Viewer] Unable to get file path from picker")
		}
	}()
}

func (a *App) setLayer(idx int) {
	a.renderer.SetCurrentLayer(idx)
	a.layerSlider.Value = layerFraction(a.renderer.CurrentLayer(), a.renderer.LayerCount())
}

func (a *App) setViewMode(m layer.ViewMode) {
	a.renderer.SetViewMode(m)
	a.Logf("[INFO] View: %s", m)
}

func (a *App) buildViewMenu() *menu.DropdownMenu {
	opts := make([]menu.MenuOption, 0, len(viewModes))
	for _, m := range viewModes {
		mode := m
		opts = append(opts, menu.MenuOption{
			OnClicked: func() error {
				a.setViewMode(mode)
				return nil
			},
			Layout: func(gtx menu.C, th *theme.Theme) menu.D {
				lbl := material.Body1(th.Theme, mode.String())
				if mode == a.renderer.ViewMode() {
					lbl.Color = th.Palette.ContrastBg
				}
				return layout.Inset{Left: unit.Dp(4), Right: unit.Dp(4)}.Layout(gtx, lbl.Layout)
			},
		})
	}
	drop := menu.NewDropdownMenu([][]menu.MenuOption{opts})
	drop.MaxWidth = unit.Dp(160)
	return drop
}

func (a *App) layout(gtx layout.Context) layout.Dimensions {
	paint.Fill(gtx.Ops, a.gvTheme.Palette.Bg)
	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Rigid(a.layoutToolbar),
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			return layout.Flex{Axis: layout.Horizontal}.Layout(gtx,
				layout.Flexed(1, a.layoutCanvas),
				layout.Rigid(a.layoutThumbnails),
			)
		}),
		layout.Rigid(a.layoutLayerBar),
		layout.Rigid(a.layoutStatusBar),
	)
}

func (a *App) layoutToolbar(gtx layout.Context) layout.Dimensions {
	if a.openBtn.Clicked(gtx) {
		a.openFilePicker()
	}
	if a.fitBtn.Clicked(gtx) {
		a.renderer.AutoFit()
	}
	if a.viewBtn.Clicked(gtx) {
		a.viewMenu.ToggleVisibility(gtx)
	}
	if a.ghostBox.Update(gtx) {
		a.renderer.SetGhostMode(a.ghostBox.Value)
	}
	if a.travelBox.Update(gtx) {
		a.renderer.SetShowTravels(a.travelBox.Value)
	}

	th := a.gvTheme.Theme
	return layout.UniformInset(unit.Dp(6)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return a.iconButton(gtx, &a.openBtn, a.openIcon, "Open")
			}),
			layout.Rigid(layout.Spacer{Width: unit.Dp(8)}.Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return a.iconButton(gtx, &a.fitBtn, a.fitIcon, "Fit")
			}),
			layout.Rigid(layout.Spacer{Width: unit.Dp(8)}.Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				dims := material.Button(th, &a.viewBtn, "View: "+a.renderer.ViewMode().String()).Layout(gtx)
				a.viewMenu.Layout(gtx, a.gvTheme)
				return dims
			}),
			layout.Rigid(layout.Spacer{Width: unit.Dp(16)}.Layout),
			layout.Rigid(material.CheckBox(th, &a.ghostBox, "Ghost").Layout),
			layout.Rigid(layout.Spacer{Width: unit.Dp(8)}.Layout),
			layout.Rigid(material.CheckBox(th, &a.travelBox, "Travels").Layout),
		)
	})
}

func (a *App) iconButton(gtx layout.Context, btn *widget.Clickable, icon *widget.Icon, label string) layout.Dimensions {
	if icon == nil {
		return material.Button(a.gvTheme.Theme, btn, label).Layout(gtx)
	}
	return material.IconButton(a.gvTheme.Theme, btn, icon, label).Layout(gtx)
}

func (a *App) layoutCanvas(gtx layout.Context) layout.Dimensions {
	size := gtx.Constraints.Max
	if a.canvas.resize(size.X, size.Y) {
		a.renderer.SetCanvasSize(size.X, size.Y)
	}
	a.handleCanvasInput(gtx)

	area := clip.Rect{Max: size}.Push(gtx.Ops)
	event.Op(gtx.Ops, a)
	a.canvas.begin(a.palette.Background)
	a.renderer.Render(a.canvas)
	a.canvas.imageOp().Add(gtx.Ops)
	paint.PaintOp{}.Add(gtx.Ops)
	area.Pop()

	if a.renderer.NeedsMoreFrames() {
		gtx.Execute(op.InvalidateCmd{})
	}
	return layout.Dimensions{Size: size}
}

func (a *App) handleCanvasInput(gtx layout.Context) {
	for _, name := range layerKeys {
		for {
			ev, ok := gtx.Event(key.Filter{Name: name})
			if !ok {
				break
			}
			if ke, ok := ev.(key.Event); ok && ke.State == key.Press {
				if idx, moved := stepLayer(ke.Name, a.renderer.CurrentLayer(), a.renderer.LayerCount()); moved {
					a.setLayer(idx)
					gtx.Execute(op.InvalidateCmd{})
				}
			}
		}
	}

	for {
		ev, ok := gtx.Event(
			key.Filter{Name: key.NameSpace},
			key.Filter{Name: key.NameEscape},
			key.Filter{Name: "Q"},
			key.Filter{Name: "G"},
			key.Filter{Name: "T"},
			key.Filter{Name: "V"},
			key.Filter{Name: "L"},
		)
		if !ok {
			break
		}
		ke, ok := ev.(key.Event)
		if !ok || ke.State != key.Press {
			continue
		}
		switch ke.Name {
		case key.NameEscape, "Q":
			a.quit = true
		case key.NameSpace:
			a.renderer.AutoFit()
		case "L":
			a.renderer.FitLayer()
		case "G":
			a.ghostBox.Value = !a.ghostBox.Value
			a.renderer.SetGhostMode(a.ghostBox.Value)
		case "T":
			a.travelBox.Value = !a.travelBox.Value
			a.renderer.SetShowTravels(a.travelBox.Value)
		case "V":
			a.setViewMode(nextViewMode(a.renderer.ViewMode()))
		}
		gtx.Execute(op.InvalidateCmd{})
	}

	for {
		ev, ok := gtx.Event(pointer.Filter{
			Target:  a,
			Kinds:   pointer.Scroll,
			ScrollY: pointer.ScrollRange{Min: -100, Max: 100},
		})
		if !ok {
			break
		}
		if pe, ok := ev.(pointer.Event); ok && pe.Kind == pointer.Scroll && pe.Scroll.Y != 0 {
			a.renderer.SetScale(a.renderer.Scale() * zoomFactor(pe.Scroll.Y))
			gtx.Execute(op.InvalidateCmd{})
		}
	}
}

func (a *App) layoutThumbnails(gtx layout.Context) layout.Dimensions {
	width := gtx.Dp(unit.Dp(thumbColumnWidth))
	gtx.Constraints.Min.X = width
	gtx.Constraints.Max.X = width

	th := a.gvTheme.Theme
	if len(a.thumbViews) == 0 {
		return layout.Center.Layout(gtx, material.Caption(th, "No objects").Layout)
	}
	return material.List(th, &a.thumbList).Layout(gtx, len(a.thumbViews), func(gtx layout.Context, i int) layout.Dimensions {
		tv := a.thumbViews[i]
		return layout.UniformInset(unit.Dp(4)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
			return layout.Flex{Axis: layout.Vertical, Alignment: layout.Middle}.Layout(gtx,
				layout.Rigid(widget.Image{Src: tv.img, Fit: widget.Unscaled, Scale: 1 / gtx.Metric.PxPerDp}.Layout),
				layout.Rigid(material.Caption(th, tv.name).Layout),
			)
		})
	})
}

func (a *App) layoutLayerBar(gtx layout.Context) layout.Dimensions {
	n := a.renderer.LayerCount()
	if a.layerSlider.Update(gtx) && n > 0 {
		a.renderer.SetCurrentLayer(layerAt(a.layerSlider.Value, n))
	}

	th := a.gvTheme.Theme
	label := "Layer -"
	if info, ok := a.renderer.LayerInfo(a.renderer.CurrentLayer()); ok {
		label = fmt.Sprintf("Layer %d/%d  Z %.2f mm  %d moves", info.Index+1, n, info.Z, info.SegmentCount)
	}
	return layout.Inset{Left: unit.Dp(8), Right: unit.Dp(8)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
			layout.Flexed(1, material.Slider(th, &a.layerSlider).Layout),
			layout.Rigid(layout.Spacer{Width: unit.Dp(8)}.Layout),
			layout.Rigid(material.Body2(th, label).Layout),
		)
	})
}

func (a *App) layoutStatusBar(gtx layout.Context) layout.Dimensions {
	th := a.gvTheme.Theme
	return layout.Inset{Left: unit.Dp(8), Right: unit.Dp(8), Bottom: unit.Dp(4)}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
			layout.Rigid(material.Body2(th, a.status).Layout),
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions { return layout.Dimensions{} }),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				if !a.renderer.IsGhostBuildRunning() {
					return layout.Dimensions{}
				}
				msg := fmt.Sprintf("Ghost %.0f%%", a.renderer.GhostProgress()*100)
				return material.Body2(th, msg).Layout(gtx)
			}),
		)
	})
}
