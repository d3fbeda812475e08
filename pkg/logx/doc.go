// Package logx wraps zerolog behind a small, swap-at-runtime logger.
//
// The Service owns the sink set (console, file, operator chat) and can be
// re-applied on config reload without invalidating loggers already handed
// out; Logger values created from it stay live across Apply().
package logx
