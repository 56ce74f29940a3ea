package core

// Neighbor holds a result candidate's external id and its squared distance
// to the query. Search results are ordered ascending by Dist, with ID as the
// tie-breaker.
type Neighbor struct {
	ID   uint32
	Dist float32
}

// Neighbors implements sort.Interface, ordering ascending by Dist with ID as
// the deterministic tie-breaker.
type Neighbors []Neighbor

func (n Neighbors) Len() int      { return len(n) }
func (n Neighbors) Swap(i, j int) { n[i], n[j] = n[j], n[i] }
func (n Neighbors) Less(i, j int) bool {
	if n[i].Dist == n[j].Dist {
		return n[i].ID < n[j].ID
	}
	return n[i].Dist < n[j].Dist
}
