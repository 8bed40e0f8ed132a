package sysv

import "os"

// Ftok reproduces src/libruntime/pm/sysv/ftok.c's key derivation: a stable
// SysV key built from a path's inode number and a caller-chosen id, so a
// client never has to hard-code numeric keys (SPEC_FULL.md supplemented
// feature "ftok-style SysV key derivation").
func Ftok(path string, id int) (int, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	ino := fileIno(fi)
	key := (id&0xff)<<24 | int(ino&0xffffff)
	return key, nil
}
