// Package server は、開発用の静的ファイル配信HTTPサーバーを管理します。
//
// このパッケージは、ポートの確保、ルーティング、
// 静的ファイルの配信、サーバーのライフサイクルを担当します。
//
// 責務:
//   - 優先ポートとフォールバックポートを順に試してリスナーを確保する
//   - リクエストパスの解決、Content-Type の決定、レスポンスの組み立て
//   - すべてのレスポンスへの CORS / キャッシュ無効化ヘッダーの付与
//   - シグナル受信時の停止処理
//
// 仕様:
//   - ルーティングとミドルウェアは gin を使用
//   - 1接続ごとに net/http のゴルーチンで処理し、遅いクライアントが他の接続を妨げない
//   - 状態は Idle → Listening → ShuttingDown → Stopped と遷移する
//   - GET 以外のメソッドは 501 を返す
package server
