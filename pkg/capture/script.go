package capture

import (
	"fmt"
	"strings"

	"github.com/tracelight/tracelight/pkg/monitors"
)

// interactionHookScript returns the page-side listener source. It captures
// the interaction kinds the parser knows about, describes the target
// element, and hands the serialized payload to the exposed binding. Capture
// phase listeners see events even when the page stops propagation.
func interactionHookScript() string {
	var types []string
	for _, t := range []string{
		"click", "dblclick", "mousedown", "mouseup", "contextmenu", "mouseover",
		"keydown", "keyup", "keypress", "input", "change", "focus", "blur",
	} {
		types = append(types, fmt.Sprintf("%q", t))
	}

	return fmt.Sprintf(`(function() {
    if (window.__tracelightHooked) { return; }
    window.__tracelightHooked = true;

    function cssPath(el) {
        var parts = [];
        while (el && el.nodeType === 1 && parts.length < 10) {
            var part = el.tagName.toLowerCase();
            if (el.id) { parts.unshift(part + '#' + el.id); break; }
            var parent = el.parentNode;
            if (parent) {
                var index = Array.prototype.indexOf.call(parent.children, el);
                part += ':nth-child(' + (index + 1) + ')';
            }
            parts.unshift(part);
            el = parent;
        }
        return parts.join(' > ');
    }

    function describe(el) {
        if (!el || el.nodeType !== 1) { return null; }
        var rect = el.getBoundingClientRect();
        return {
            tag_name: el.tagName.toLowerCase(),
            id: el.id || undefined,
            name: el.getAttribute('name') || undefined,
            class_names: el.className ? String(el.className).split(/\s+/).filter(Boolean) : undefined,
            type_attr: el.getAttribute('type') || undefined,
            role: el.getAttribute('role') || undefined,
            aria_label: el.getAttribute('aria-label') || undefined,
            placeholder: el.getAttribute('placeholder') || undefined,
            title: el.getAttribute('title') || undefined,
            href: el.getAttribute('href') || undefined,
            src: el.getAttribute('src') || undefined,
            value: el.value !== undefined ? String(el.value).slice(0, 200) : undefined,
            text: (el.innerText || '').trim().slice(0, 200) || undefined,
            css_path: cssPath(el),
            bounding_box: { x: rect.x, y: rect.y, width: rect.width, height: rect.height }
        };
    }

    function logInteraction(type, event, target) {
        try {
            window.%s(JSON.stringify({
                type: type,
                timestamp: Date.now(),
                url: window.location.href,
                event: {
                    mouse_button: typeof event.button === 'number' ? event.button : undefined,
                    key_value: event.key,
                    key_code: event.code,
                    ctrl_pressed: !!event.ctrlKey,
                    shift_pressed: !!event.shiftKey,
                    alt_pressed: !!event.altKey,
                    meta_pressed: !!event.metaKey,
                    mouse_x_viewport: event.clientX,
                    mouse_y_viewport: event.clientY,
                    mouse_x_page: event.pageX,
                    mouse_y_page: event.pageY
                },
                element: describe(target)
            }));
        } catch (e) { /* binding not installed yet */ }
    }

    [%s].forEach(function(type) {
        document.addEventListener(type, function(event) {
            logInteraction(type, event, event.target);
        }, true);
    });
})();`, monitors.BindingName, strings.Join(types, ", "))
}

// windowSnapshotScript serializes the page's own top-level window keys
// (skipping the built-in surface) so successive polls can be diffed.
func windowSnapshotScript() string {
	return `(function() {
    var builtin = new Set(Object.getOwnPropertyNames(Object.getPrototypeOf(window) || {}));
    ['window', 'self', 'top', 'parent', 'frames', 'document', 'navigator',
     'location', 'history', 'screen', 'console', 'performance'].forEach(function(k) { builtin.add(k); });

    var props = {};
    Object.getOwnPropertyNames(window).forEach(function(key) {
        if (builtin.has(key)) { return; }
        try {
            var value = window[key];
            var type = typeof value;
            if (type === 'function') { return; }
            if (value === null || type === 'string' || type === 'number' || type === 'boolean') {
                props[key] = value;
            } else {
                props[key] = JSON.parse(JSON.stringify(value));
            }
        } catch (e) { props[key] = '[unserializable]'; }
    });

    return { url: window.location.href, props: props };
})()`
}
