package telemetry

import "fmt"

// texturesPerMeshHint flags scenes binding many textures per visible mesh.
const texturesPerMeshHint = 4

// Suggest derives remediation hints from sample. It has no side effects and
// nothing in the control loop consumes its output.
func Suggest(sample MemorySample, thresholds Thresholds) []string {
	var hints []string
	if over(sample.HeapUsagePercent, thresholds.HeapUsagePercent) {
		hints = append(hints, fmt.Sprintf("Heap usage is %.1f%%: lower the texture ceiling or shrink the streaming load distance.", sample.HeapUsagePercent))
	}
	if over(float64(sample.DrawCalls), thresholds.DrawCalls) {
		hint := fmt.Sprintf("%d draw calls per frame: merge static meshes or use instancing.", sample.DrawCalls)
		if sample.DrawCallsEstimated {
			hint = fmt.Sprintf("~%d draw calls per frame (estimated from mesh count): merge static meshes or use instancing.", sample.DrawCalls)
		}
		hints = append(hints, hint)
	}
	if over(sample.VerticesMillions(), thresholds.VerticesMillions) {
		hints = append(hints, fmt.Sprintf("%.2fM active vertices: tighten LOD distances or lower the quality tier.", sample.VerticesMillions()))
	}
	if sample.ActiveMeshes > 0 && sample.ActiveTextures > sample.ActiveMeshes*texturesPerMeshHint {
		hints = append(hints, fmt.Sprintf("%d textures across %d meshes: share materials or pack textures into atlases.", sample.ActiveTextures, sample.ActiveMeshes))
	}
	return hints
}

func over(value float64, pair ThresholdPair) bool {
	_, _, ok := grade(value, pair)
	return ok
}
