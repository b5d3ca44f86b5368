package runtime

// polyfillJS provides the globals the widget framework expects. QuickJS has
// no DOM, timers, or animation frames; the framework only needs enough of
// them to build detached view trees and serialize them, so the DOM subset
// below stops at attribute/child bookkeeping plus outerHTML.
const polyfillJS = `
	// structuredClone — used for deep cloning model state.
	if (typeof globalThis.structuredClone === 'undefined') {
		globalThis.structuredClone = function(obj) {
			return JSON.parse(JSON.stringify(obj));
		};
	}

	// setTimeout/clearTimeout — executed immediately: rendering is a single
	// synchronous pass, there is no event loop to defer into.
	if (typeof globalThis.setTimeout === 'undefined') {
		let _nextId = 1;
		globalThis.setTimeout = function(fn, delay) {
			const id = _nextId++;
			try { fn(); } catch (e) {}
			return id;
		};
		globalThis.clearTimeout = function(id) {};
		globalThis.setInterval = function(fn, delay) {
			return globalThis.setTimeout(fn, delay);
		};
		globalThis.clearInterval = function(id) {};
	}

	if (typeof globalThis.requestAnimationFrame === 'undefined') {
		globalThis.requestAnimationFrame = function(fn) {
			return globalThis.setTimeout(fn, 0);
		};
		globalThis.cancelAnimationFrame = function(id) {
			globalThis.clearTimeout(id);
		};
	}

	if (typeof globalThis.performance === 'undefined') {
		globalThis.performance = { now: function() { return Date.now(); } };
	}

	// DOM subset.
	if (typeof globalThis.document === 'undefined') {
		const VOID_TAGS = new Set(['area','base','br','col','embed','hr','img','input','link','meta','source','track','wbr']);

		function escapeText(s) {
			return String(s).replace(/&/g, '&amp;').replace(/</g, '&lt;').replace(/>/g, '&gt;');
		}
		function escapeAttr(s) {
			return escapeText(s).replace(/"/g, '&quot;');
		}

		class NbNode {
			constructor() {
				this.childNodes = [];
				this.parentNode = null;
			}
			appendChild(child) {
				child.remove();
				child.parentNode = this;
				this.childNodes.push(child);
				return child;
			}
			insertBefore(child, ref) {
				child.remove();
				child.parentNode = this;
				const i = ref ? this.childNodes.indexOf(ref) : -1;
				if (i < 0) {
					this.childNodes.push(child);
				} else {
					this.childNodes.splice(i, 0, child);
				}
				return child;
			}
			removeChild(child) {
				const i = this.childNodes.indexOf(child);
				if (i >= 0) {
					this.childNodes.splice(i, 1);
					child.parentNode = null;
				}
				return child;
			}
			remove() {
				if (this.parentNode) this.parentNode.removeChild(this);
			}
			get firstChild() { return this.childNodes[0] || null; }
			get lastChild() { return this.childNodes[this.childNodes.length - 1] || null; }
			get children() { return this.childNodes.filter((c) => c instanceof NbElement); }
			addEventListener() {}
			removeEventListener() {}
			dispatchEvent() { return true; }
			contains(node) {
				for (let n = node; n; n = n.parentNode) {
					if (n === this) return true;
				}
				return false;
			}
		}

		class NbText extends NbNode {
			constructor(data) {
				super();
				this.data = String(data);
			}
			get textContent() { return this.data; }
			set textContent(v) { this.data = String(v); }
			get outerHTML() { return escapeText(this.data); }
		}

		class NbStyle {
			constructor() { this._props = {}; }
			setProperty(name, value) { this._props[name] = String(value); }
			removeProperty(name) { delete this._props[name]; }
			getPropertyValue(name) { return this._props[name] || ''; }
			get cssText() {
				return Object.entries(this._props).map(([k, v]) => k + ': ' + v).join('; ');
			}
		}

		class NbClassList {
			constructor(el) { this._el = el; }
			_list() {
				const v = this._el.getAttribute('class');
				return v ? v.split(/\s+/).filter(Boolean) : [];
			}
			_set(list) { this._el.setAttribute('class', list.join(' ')); }
			add(...names) {
				const list = this._list();
				for (const n of names) if (!list.includes(n)) list.push(n);
				this._set(list);
			}
			remove(...names) {
				this._set(this._list().filter((c) => !names.includes(c)));
			}
			contains(name) { return this._list().includes(name); }
			toggle(name, force) {
				const has = this.contains(name);
				const want = force === undefined ? !has : force;
				if (want && !has) this.add(name);
				if (!want && has) this.remove(name);
				return want;
			}
		}

		class NbElement extends NbNode {
			constructor(tagName) {
				super();
				this.tagName = String(tagName).toUpperCase();
				this.attributes = {};
				this.style = new NbStyle();
				this.classList = new NbClassList(this);
			}
			get localName() { return this.tagName.toLowerCase(); }
			setAttribute(name, value) { this.attributes[name] = String(value); }
			getAttribute(name) {
				return Object.prototype.hasOwnProperty.call(this.attributes, name) ? this.attributes[name] : null;
			}
			removeAttribute(name) { delete this.attributes[name]; }
			hasAttribute(name) { return Object.prototype.hasOwnProperty.call(this.attributes, name); }
			get id() { return this.getAttribute('id') || ''; }
			set id(v) { this.setAttribute('id', v); }
			get className() { return this.getAttribute('class') || ''; }
			set className(v) { this.setAttribute('class', v); }
			get textContent() {
				return this.childNodes.map((c) => c.textContent).join('');
			}
			set textContent(v) {
				this.childNodes = [];
				if (v !== '') this.appendChild(new NbText(v));
			}
			get innerHTML() {
				return this.childNodes.map((c) => c.outerHTML).join('');
			}
			set innerHTML(v) {
				// Raw markup is kept opaque: it round-trips into outerHTML
				// unchanged, which is all headless serialization needs.
				this.childNodes = [];
				if (v !== '') {
					const raw = new NbText('');
					raw.data = '';
					raw._raw = String(v);
					Object.defineProperty(raw, 'outerHTML', { get() { return this._raw; } });
					this.appendChild(raw);
				}
			}
			get outerHTML() {
				const tag = this.localName;
				let html = '<' + tag;
				for (const [k, v] of Object.entries(this.attributes)) {
					html += ' ' + k + '="' + escapeAttr(v) + '"';
				}
				const css = this.style.cssText;
				if (css) html += ' style="' + escapeAttr(css) + '"';
				if (VOID_TAGS.has(tag)) return html + '/>';
				return html + '>' + this.innerHTML + '</' + tag + '>';
			}
			querySelector() { return null; }
			querySelectorAll() { return []; }
			getBoundingClientRect() {
				return { top: 0, left: 0, right: 0, bottom: 0, width: 0, height: 0, x: 0, y: 0 };
			}
			focus() {}
			blur() {}
		}

		class NbCanvasContext {
			constructor() { this.font = ''; }
			measureText(text) {
				if (typeof globalThis.__nbembed_measure_text === 'function') {
					return { width: globalThis.__nbembed_measure_text(text, this.font) };
				}
				// Crude width estimate when text measurement is disabled.
				return { width: text.length * 8 };
			}
		}

		class NbCanvasElement extends NbElement {
			constructor() {
				super('canvas');
				this._ctx = new NbCanvasContext();
			}
			getContext(kind) {
				return kind === '2d' ? this._ctx : null;
			}
		}

		const doc = {
			documentElement: new NbElement('html'),
			head: new NbElement('head'),
			body: new NbElement('body'),
			createElement(tag) {
				if (String(tag).toLowerCase() === 'canvas') return new NbCanvasElement();
				return new NbElement(tag);
			},
			createElementNS(ns, tag) { return this.createElement(tag); },
			createTextNode(data) { return new NbText(data); },
			createDocumentFragment() { return new NbElement('template'); },
			querySelector() { return null; },
			querySelectorAll() { return []; },
			getElementById() { return null; },
			addEventListener() {},
			removeEventListener() {},
		};
		doc.documentElement.appendChild(doc.head);
		doc.documentElement.appendChild(doc.body);

		globalThis.document = doc;
		globalThis.window = globalThis;
		globalThis.navigator = { userAgent: 'nbembed' };
		globalThis.Element = NbElement;
		globalThis.HTMLElement = NbElement;
		globalThis.Node = NbNode;
		globalThis.CustomEvent = class CustomEvent {
			constructor(type, init) {
				this.type = type;
				this.detail = init && init.detail;
			}
		};
		globalThis.Event = globalThis.CustomEvent;
		globalThis.MutationObserver = class MutationObserver {
			observe() {}
			disconnect() {}
			takeRecords() { return []; }
		};
		globalThis.ResizeObserver = class ResizeObserver {
			observe() {}
			unobserve() {}
			disconnect() {}
		};
		globalThis.getComputedStyle = function() {
			return { getPropertyValue() { return ''; } };
		};
	}
`
