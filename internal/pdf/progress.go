package pdf

// 絵本処理の進捗段階。ジョブ状態の progress.stage にそのまま載ります。
const (
	StageLoad      = "load"      // アップロード済みPDFの読み込み
	StageProcess   = "process"   // ページ描画・グレースケール化・QR生成
	StageWrite     = "write"     // 出力PDFの書き出し
	StageCompleted = "completed" // 成果物の準備完了
)

// ProgressReporter は段階と 0〜100 の進捗率を受け取るコールバックです。
type ProgressReporter func(stage string, percent int)

// reportProgress は percent を 0〜100 に丸めて通知します。cb が nil なら何もしません。
func reportProgress(cb ProgressReporter, stage string, percent int) {
	if cb != nil {
		cb(stage, min(max(percent, 0), 100))
	}
}
