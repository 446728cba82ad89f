package service

import "github.com/vs316/schema-weaver-sub001/internal/model"

// Palette 自动着色调色板，按连通分量依次循环使用
var Palette = []string{
	"#3b82f6",
	"#10b981",
	"#f59e0b",
	"#ef4444",
	"#8b5cf6",
	"#ec4899",
	"#14b8a6",
	"#f97316",
}

// ApplyAutoColors 为每个连通分量分配一种颜色，已有颜色的表保持不变。
// 返回新切片，不修改入参；遍历顺序跟随 tables 的顺序，因此结果是确定的。
func ApplyAutoColors(tables []model.Table, relations []model.Relation) []model.Table {
	out := model.CloneTables(tables)
	if len(out) == 0 {
		return out
	}

	pos := make(map[string]int, len(out))
	for i, t := range out {
		if _, dup := pos[t.ID]; !dup {
			pos[t.ID] = i
		}
	}

	// 无向邻接表；端点缺失的连线直接忽略
	adj := make([][]int, len(out))
	for _, r := range relations {
		s, okS := pos[r.SourceTableID]
		d, okD := pos[r.TargetTableID]
		if !okS || !okD {
			continue
		}
		adj[s] = append(adj[s], d)
		if s != d {
			adj[d] = append(adj[d], s)
		}
	}

	visited := make([]bool, len(out))
	counter := 0
	for i := range out {
		if visited[i] {
			continue
		}
		visited[i] = true

		// 颜色在分量里第一次真正需要上色时才取，整片都已着色的分量不占用调色板
		color := ""
		stack := []int{i}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			// 已着色的表保留原色，但照常向外扩展
			if !out[cur].HasColor() {
				if color == "" {
					color = Palette[counter%len(Palette)]
					counter++
				}
				c := color
				out[cur].Color = &c
			}

			for _, next := range adj[cur] {
				if visited[next] {
					continue
				}
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return out
}
