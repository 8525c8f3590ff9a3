//go:build darwin

package fsscan

import "syscall"

func mtimeNsec(stat *syscall.Stat_t) int64 { return stat.Mtimespec.Nsec }
func ctimeNsec(stat *syscall.Stat_t) int64 { return stat.Ctimespec.Nsec }
