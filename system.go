package main

import (
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// uptimeSeconds reads the host uptime from /proc. Zero on platforms or
// containers where it is unavailable.
func uptimeSeconds() int64 {
	b, err := os.ReadFile("/proc/uptime")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return 0
	}
	f, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

// totalSpace reports the size in bytes of the filesystem holding path.
func totalSpace(path string) int64 {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0
	}
	return int64(st.Blocks) * int64(st.Bsize)
}

// freeSpace reports the bytes available to this process on path.
func freeSpace(path string) int64 {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0
	}
	return int64(st.Bavail) * int64(st.Bsize)
}

// localIP discovers the outbound IPv4 address without sending packets
// (UDP connect only assigns the source address).
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}

func platformString() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}
