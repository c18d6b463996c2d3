package preview

import (
	"errors"
	"strings"
)

// Zoom wraps a rendered SVG in a viewport that pans with pointer drags and
// zooms with the scroll wheel. It satisfies render.ZoomAttacher; the engine
// loads it on demand.
type Zoom struct{}

// NewZoom creates the attacher.
func NewZoom() *Zoom {
	return &Zoom{}
}

// Attach wraps svg and injects the controller script.
func (z *Zoom) Attach(svg string) (string, error) {
	if !strings.Contains(svg, "<svg") {
		return "", errors.New("no svg element in rendered output")
	}
	return `<div id="diagram-viewport" style="width:100%;height:100%;overflow:hidden;cursor:grab">` +
		svg +
		"</div>\n<script>" + panZoomScript + "</script>", nil
}

const panZoomScript = `(function () {
  var viewport = document.getElementById("diagram-viewport");
  if (!viewport) return;
  var svg = viewport.querySelector("svg");
  if (!svg) return;
  var scale = 1, tx = 0, ty = 0, dragging = false, lastX = 0, lastY = 0;
  function apply() {
    svg.style.transformOrigin = "0 0";
    svg.style.transform = "translate(" + tx + "px," + ty + "px) scale(" + scale + ")";
  }
  viewport.addEventListener("wheel", function (e) {
    e.preventDefault();
    var factor = e.deltaY < 0 ? 1.1 : 0.9;
    scale = Math.min(10, Math.max(0.1, scale * factor));
    apply();
  }, { passive: false });
  viewport.addEventListener("pointerdown", function (e) {
    dragging = true;
    lastX = e.clientX;
    lastY = e.clientY;
    viewport.setPointerCapture(e.pointerId);
  });
  viewport.addEventListener("pointermove", function (e) {
    if (!dragging) return;
    tx += e.clientX - lastX;
    ty += e.clientY - lastY;
    lastX = e.clientX;
    lastY = e.clientY;
    apply();
  });
  viewport.addEventListener("pointerup", function () { dragging = false; });
})();`
