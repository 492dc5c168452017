//go:build linux
// +build linux

package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Receive timeout, so the loop notices ctx cancellation.
const netlinkPollInterval = 500 * time.Millisecond

type linuxWatcher struct {
	logger *zap.Logger
}

func newNetworkWatcher(logger *zap.Logger) NetworkWatcher {
	return &linuxWatcher{logger: logger}
}

// Watch subscribes to rtnetlink link and address notifications.
func (w *linuxWatcher) Watch(ctx context.Context, onChange func()) error {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return fmt.Errorf("failed to open netlink socket: %w", err)
	}
	defer unix.Close(fd)

	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: unix.RTMGRP_LINK | unix.RTMGRP_IPV4_IFADDR | unix.RTMGRP_IPV6_IFADDR | unix.RTMGRP_IPV4_ROUTE,
	}
	if err := unix.Bind(fd, addr); err != nil {
		return fmt.Errorf("failed to bind netlink socket: %w", err)
	}

	tv := unix.NsecToTimeval(netlinkPollInterval.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("failed to set netlink receive timeout: %w", err)
	}

	w.logger.Debug("Watching network changes via netlink")

	buf := make([]byte, 8192)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.ENOBUFS) {
				// Kernel dropped notifications; something changed.
				onChange()
				continue
			}
			return fmt.Errorf("netlink receive failed: %w", err)
		}
		if n < unix.NLMSG_HDRLEN {
			continue
		}
		onChange()
	}
}

func osVersion() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uts.Release[:])
}
