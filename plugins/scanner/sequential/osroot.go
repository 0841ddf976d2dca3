package sequential

import (
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// OSRoot 返回在 root 下解析相对页名的 OS 文件系统。
// root 只是起点而非边界：含 ".." 的名称照常解析到 root 之外；绝对名称原样使用。
func OSRoot(root string) billy.Basic {
	if root == "" {
		root = "."
	}
	return &osRoot{ChrootOS: osfs.Default, root: root}
}

type osRoot struct {
	*osfs.ChrootOS
	root string
}

func (o *osRoot) resolve(name string) string {
	name = filepath.FromSlash(name)
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.root, name)
}

func (o *osRoot) Create(name string) (billy.File, error) {
	return o.ChrootOS.Create(o.resolve(name))
}

func (o *osRoot) Open(name string) (billy.File, error) {
	return o.ChrootOS.Open(o.resolve(name))
}

func (o *osRoot) OpenFile(name string, flag int, perm os.FileMode) (billy.File, error) {
	return o.ChrootOS.OpenFile(o.resolve(name), flag, perm)
}

func (o *osRoot) Stat(name string) (os.FileInfo, error) {
	return o.ChrootOS.Stat(o.resolve(name))
}

func (o *osRoot) Rename(from, to string) error {
	return o.ChrootOS.Rename(o.resolve(from), o.resolve(to))
}

func (o *osRoot) Remove(name string) error {
	return o.ChrootOS.Remove(o.resolve(name))
}
