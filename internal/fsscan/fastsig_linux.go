//go:build linux

package fsscan

import "syscall"

func mtimeNsec(stat *syscall.Stat_t) int64 { return stat.Mtim.Nsec }
func ctimeNsec(stat *syscall.Stat_t) int64 { return stat.Ctim.Nsec }
