package book

// bidHeap orders resting buy orders best-price-first: highest limit price
// first, ties broken by arrival sequence (FIFO).
type bidHeap []*restingOrder

func (h bidHeap) Len() int { return len(h) }

func (h bidHeap) Less(i, j int) bool {
	pi, pj := *h[i].order.LimitPrice, *h[j].order.LimitPrice
	if pi != pj {
		return pi > pj
	}
	return h[i].order.ArrivalSeq < h[j].order.ArrivalSeq
}

func (h bidHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *bidHeap) Push(x any) {
	ro := x.(*restingOrder)
	ro.index = len(*h)
	*h = append(*h, ro)
}

func (h *bidHeap) Pop() any {
	old := *h
	n := len(old)
	ro := old[n-1]
	old[n-1] = nil
	ro.index = -1
	*h = old[:n-1]
	return ro
}

// askHeap orders resting sell orders best-price-first: lowest limit price
// first, ties broken by arrival sequence (FIFO).
type askHeap []*restingOrder

func (h askHeap) Len() int { return len(h) }

func (h askHeap) Less(i, j int) bool {
	pi, pj := *h[i].order.LimitPrice, *h[j].order.LimitPrice
	if pi != pj {
		return pi < pj
	}
	return h[i].order.ArrivalSeq < h[j].order.ArrivalSeq
}

func (h askHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *askHeap) Push(x any) {
	ro := x.(*restingOrder)
	ro.index = len(*h)
	*h = append(*h, ro)
}

func (h *askHeap) Pop() any {
	old := *h
	n := len(old)
	ro := old[n-1]
	old[n-1] = nil
	ro.index = -1
	*h = old[:n-1]
	return ro
}
