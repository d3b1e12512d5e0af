/*
Package executor runs external CLI tools as subprocesses.

Two execution modes cover every caller: Run buffers all output for short
commands whose result is parsed, and RunStreaming forwards output line by
line for long-running commands whose progress the user watches. Both accept
an optional stdin payload, which is how manifests and cluster configs reach
kubectl and eksctl without touching the filesystem.

ExtractJSON tolerates the warning banners and update notices CLIs print
around their JSON payloads by slicing from the first opening bracket to the
matching last closing one.
*/
package executor
