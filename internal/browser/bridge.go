package browser

// bridgeJS installs window.__reelbar, the in-page half of PageHost.
//
// Nodes handed to Go are registered under numeric ids. Ids start from the install
// time so they stay unique across document reloads; a reload drops the old registry
// and the old ids then resolve to nothing. Observer, pointer and media callbacks push
// onto an event buffer that Go drains on a ticker.
const bridgeJS = `() => {
	if (window.__reelbar) return true;

	const ids = new WeakMap();
	const nodes = new Map();
	let nextID = Date.now() * 1000;
	const subs = new Map();
	let nextSub = 0;
	const events = [];

	const idOf = (n) => {
		if (!n) return 0;
		let id = ids.get(n);
		if (!id) {
			id = ++nextID;
			ids.set(n, id);
			nodes.set(id, new WeakRef(n));
		}
		return id;
	};
	const lookup = (id) => {
		const ref = nodes.get(id);
		const n = ref && ref.deref();
		if (!n || !n.isConnected) {
			nodes.delete(id);
			return null;
		}
		return n;
	};
	const mustNode = (id) => {
		const n = lookup(id);
		if (!n) throw new Error('detached');
		return n;
	};
	const finite = (v) => (Number.isFinite(v) ? v : null);
	const subscribe = (cancel) => {
		const sub = ++nextSub;
		subs.set(sub, cancel);
		return sub;
	};

	const trackStyle = [
		'position:absolute', 'left:0', 'right:0', 'bottom:0', 'height:6px',
		'background:rgba(255,255,255,0.3)', 'cursor:pointer', 'z-index:1000',
		'touch-action:none', 'pointer-events:auto',
	].join(';');
	const fillStyle = ['height:100%', 'width:0%', 'background:#f00', 'pointer-events:none'].join(';');

	window.__reelbar = {
		query: (sel) => idOf(document.querySelector(sel)),
		queryAll: (sel) => Array.from(document.querySelectorAll(sel), idOf),
		within: (root, sel) => {
			const n = lookup(root);
			return n ? idOf(n.querySelector(sel)) : 0;
		},
		hasAttr: (id, name) => {
			const n = lookup(id);
			return !!n && n.hasAttribute(name);
		},
		observe: (id, childList, attributes) => {
			const n = mustNode(id);
			let sub = 0;
			const mo = new MutationObserver((records) => {
				events.push({
					kind: 'mutation',
					sub,
					records: records.map((r) => ({ type: r.type, attr: r.attributeName || '', target: idOf(r.target) })),
				});
			});
			mo.observe(n, { childList, attributes });
			sub = subscribe(() => mo.disconnect());
			return sub;
		},
		unsubscribe: (sub) => {
			const cancel = subs.get(sub);
			if (cancel) {
				subs.delete(sub);
				cancel();
			}
			return true;
		},
		findMounted: (parent, mountID) => {
			const p = mustNode(parent);
			for (const c of p.children) {
				if (c.id === mountID) return idOf(c);
			}
			return 0;
		},
		mount: (parent, mountID) => {
			const p = mustNode(parent);
			const track = document.createElement('div');
			track.id = mountID;
			track.setAttribute('style', trackStyle);
			const fill = document.createElement('div');
			fill.className = mountID + '-fill';
			fill.setAttribute('style', fillStyle);
			track.appendChild(fill);
			p.appendChild(track);
			return idOf(track);
		},
		remove: (id) => {
			mustNode(id).remove();
			return true;
		},
		setFill: (id, fraction) => {
			const fill = mustNode(id).firstElementChild;
			if (fill) fill.style.width = (fraction * 100) + '%';
			return true;
		},
		onPointer: (id) => {
			const n = mustNode(id);
			let sub = 0;
			const push = (phase) => (e) => {
				if (phase === 'move' && !(e.buttons & 1)) return;
				if (phase === 'down' && n.setPointerCapture) n.setPointerCapture(e.pointerId);
				const rect = n.getBoundingClientRect();
				events.push({ kind: 'pointer', sub, phase, offset: e.clientX - rect.left, width: rect.width });
				e.stopPropagation();
				e.preventDefault();
			};
			const handlers = { pointerdown: push('down'), pointermove: push('move'), pointerup: push('up') };
			for (const [type, h] of Object.entries(handlers)) n.addEventListener(type, h);
			sub = subscribe(() => {
				for (const [type, h] of Object.entries(handlers)) n.removeEventListener(type, h);
			});
			return sub;
		},
		isMedia: (id) => mustNode(id) instanceof HTMLMediaElement,
		media: (id) => {
			const n = mustNode(id);
			return { t: n.currentTime, d: finite(n.duration) };
		},
		seek: (id, seconds) => {
			mustNode(id).currentTime = seconds;
			return true;
		},
		onTime: (id) => {
			const n = mustNode(id);
			let sub = 0;
			const h = () => events.push({ kind: 'media', sub, t: n.currentTime, d: finite(n.duration) });
			n.addEventListener('timeupdate', h);
			sub = subscribe(() => n.removeEventListener('timeupdate', h));
			return sub;
		},
		drain: () => events.splice(0, events.length),
	};
	return true;
}`

// callJS invokes one bridge operation and reports a missing bridge or a thrown error
// in-band, so Go can reinstall or map the error.
const callJS = `(op, args) => {
	const b = window.__reelbar;
	if (!b) return { missing: true };
	try {
		return { value: b[op](...args) };
	} catch (e) {
		return { error: String((e && e.message) || e) };
	}
}`
