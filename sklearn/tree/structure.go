package tree

// TreeLeaf は子ノードが存在しないことを表す
const TreeLeaf = -1

// TreeUndefined は葉ノードの分割特徴量・閾値に使う値
const TreeUndefined = -2

// Structure は学習済み決定木を配列形式で保持する（scikit-learn の tree_ 属性と同じ形）。
// ノード0が根で、ノード番号は前順（深さ優先）で振られる。
//
// 公開フィールドのみで構成されるため gob でそのまま保存できる。
type Structure struct {
	// ChildrenLeft[i] はノードiの左の子（x[Feature[i]] <= Threshold[i]）。葉なら TreeLeaf。
	ChildrenLeft []int
	// ChildrenRight[i] はノードiの右の子。葉なら TreeLeaf。
	ChildrenRight []int
	// Feature[i] はノードiの分割に使う特徴量の列番号。葉なら TreeUndefined。
	Feature []int
	// Threshold[i] はノードiの分割閾値。葉なら TreeUndefined。
	Threshold []float64
	// Impurity[i] はノードiの不純度
	Impurity []float64
	// NNodeSamples[i] はノードiに到達した学習サンプル数（ブートストラップの重複を含む）
	NNodeSamples []int
	// Value[i] はノードiでのクラス比率（列は分類器の Classes() の順）
	Value [][]float64
}

func newStructure() *Structure {
	return &Structure{}
}

// addNode appends a node and links it to its parent. It returns the node id.
func (s *Structure) addNode(parent int, isLeft bool, feature int, threshold, impurity float64, n int, value []float64) int {
	id := len(s.Feature)
	s.ChildrenLeft = append(s.ChildrenLeft, TreeLeaf)
	s.ChildrenRight = append(s.ChildrenRight, TreeLeaf)
	s.Feature = append(s.Feature, feature)
	s.Threshold = append(s.Threshold, threshold)
	s.Impurity = append(s.Impurity, impurity)
	s.NNodeSamples = append(s.NNodeSamples, n)
	s.Value = append(s.Value, value)

	if parent >= 0 {
		if isLeft {
			s.ChildrenLeft[parent] = id
		} else {
			s.ChildrenRight[parent] = id
		}
	}
	return id
}

// NodeCount はノード数を返す
func (s *Structure) NodeCount() int {
	return len(s.Feature)
}

// IsLeaf はノードが葉かどうかを返す
func (s *Structure) IsLeaf(node int) bool {
	return s.ChildrenLeft[node] == TreeLeaf
}

// MaxDepth は根を深さ0とした最大の深さを返す
func (s *Structure) MaxDepth() int {
	if s.NodeCount() == 0 {
		return 0
	}
	maxDepth := 0
	depth := make([]int, s.NodeCount())
	// ノード番号は前順なので、子は必ず親より後に現れる
	for node := 0; node < s.NodeCount(); node++ {
		if depth[node] > maxDepth {
			maxDepth = depth[node]
		}
		if !s.IsLeaf(node) {
			depth[s.ChildrenLeft[node]] = depth[node] + 1
			depth[s.ChildrenRight[node]] = depth[node] + 1
		}
	}
	return maxDepth
}

// NLeaves は葉の数を返す
func (s *Structure) NLeaves() int {
	n := 0
	for node := 0; node < s.NodeCount(); node++ {
		if s.IsLeaf(node) {
			n++
		}
	}
	return n
}

// Apply は x が到達する葉のノード番号を返す
func (s *Structure) Apply(x []float64) int {
	node := 0
	for !s.IsLeaf(node) {
		if x[s.Feature[node]] <= s.Threshold[node] {
			node = s.ChildrenLeft[node]
		} else {
			node = s.ChildrenRight[node]
		}
	}
	return node
}

// DecisionPath は根から葉までに通過したノード番号を順に返す
func (s *Structure) DecisionPath(x []float64) []int {
	path := []int{0}
	node := 0
	for !s.IsLeaf(node) {
		if x[s.Feature[node]] <= s.Threshold[node] {
			node = s.ChildrenLeft[node]
		} else {
			node = s.ChildrenRight[node]
		}
		path = append(path, node)
	}
	return path
}

// Predict は x が到達した葉のクラス比率を返す。返り値は内部スライスなので変更しないこと。
func (s *Structure) Predict(x []float64) []float64 {
	return s.Value[s.Apply(x)]
}
